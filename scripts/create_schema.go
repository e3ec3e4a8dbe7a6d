package main

import (
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"hikbridge/internal/config"
	"hikbridge/internal/database"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_queue (
    id         BIGSERIAL PRIMARY KEY,
    outbound   TEXT,
    inbound    TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_inbound
    ON sync_queue (created_at)
    WHERE inbound IS NOT NULL;

CREATE TABLE IF NOT EXISTS persons (
    person_id   TEXT PRIMARY KEY,
    given_name  TEXT,
    family_name TEXT,
    valid_from  TIMESTAMPTZ,
    valid_to    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS devices (
    ip          TEXT PRIMARY KEY,
    username    TEXT,
    password    TEXT,
    http_port   INTEGER,
    https_port  INTEGER,
    rtsp_port   INTEGER,
    server_port INTEGER,
    enabled     BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS config_options (
    name  TEXT PRIMARY KEY,
    value TEXT
);
`

func main() {
	// 加载配置
	cfg := config.Load()

	// 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 执行 SQL
	if _, err := db.Exec(schemaSQL); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute SQL: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ hikbridge schema created successfully!")
}
