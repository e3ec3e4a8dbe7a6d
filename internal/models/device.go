package models

// DeviceConfig 门禁设备配置（对核心只读，按命令中的 IP 查询）
type DeviceConfig struct {
	IP         string
	Username   string
	Password   string
	HTTPPort   int
	HTTPSPort  int
	RTSPPort   int
	ServerPort int
	Enabled    bool
}
