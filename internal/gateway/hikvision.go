// Package gateway is the HTTP client for the Hikvision ISAPI access-control
// surface: user records and face library uploads. All calls are bounded by
// per-operation timeouts; a non-2xx response is an error carrying the status
// and a body excerpt.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hikbridge/internal/models"
)

const (
	infoTimeout   = 15 * time.Second
	mutateTimeout = 30 * time.Second
	uploadTimeout = 45 * time.Second

	defaultFaceLibraryID = "1"
	faceLibraryType      = "blackFD"

	bodyExcerptLimit = 200
)

// Client talks to one device.
type Client struct {
	http   *resty.Client
	ip     string
	fdid   string
	logger *zap.Logger
}

// NewClient 创建设备客户端（digest 认证，http 明文端口）
func NewClient(cfg models.DeviceConfig, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(fmt.Sprintf("http://%s:%d", cfg.IP, cfg.HTTPPort)).
		SetDigestAuth(cfg.Username, cfg.Password).
		SetHeader("Accept", "application/xml, application/json")

	return &Client{
		http:   http,
		ip:     cfg.IP,
		fdid:   defaultFaceLibraryID,
		logger: logger.With(zap.String("device_ip", cfg.IP)),
	}
}

type employeeNoEntry struct {
	EmployeeNo string `json:"employeeNo"`
}

type userSearchCond struct {
	SearchID             string            `json:"searchID"`
	MaxResults           int               `json:"maxResults"`
	SearchResultPosition int               `json:"searchResultPosition"`
	EmployeeNoList       []employeeNoEntry `json:"EmployeeNoList,omitempty"`
}

type userSearchRequest struct {
	UserInfoSearchCond userSearchCond `json:"UserInfoSearchCond"`
}

type userSearchResponse struct {
	UserInfoSearch struct {
		UserInfo []json.RawMessage `json:"UserInfo"`
	} `json:"UserInfoSearch"`
}

type validWindow struct {
	Enable    bool   `json:"enable"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
}

type rightPlan struct {
	DoorNo         int    `json:"doorNo"`
	PlanTemplateNo string `json:"planTemplateNo"`
}

type userInfo struct {
	EmployeeNo        string      `json:"employeeNo"`
	Name              string      `json:"name"`
	UserType          string      `json:"userType"`
	Valid             validWindow `json:"Valid"`
	DoorRight         string      `json:"doorRight"`
	RightPlan         []rightPlan `json:"RightPlan"`
	MaxFingerPrintNum int         `json:"maxFingerPrintNum"`
	MaxFaceNum        int         `json:"maxFaceNum"`
}

type userInfoRequest struct {
	UserInfo userInfo `json:"UserInfo"`
}

type userDeleteRequest struct {
	UserInfoDelCond struct {
		EmployeeNoList []employeeNoEntry `json:"EmployeeNoList"`
	} `json:"UserInfoDelCond"`
}

type faceLibrary struct {
	FDID         string `json:"FDID"`
	Name         string `json:"name"`
	FaceLibType  string `json:"faceLibType"`
	LibAttribute string `json:"libAttribute"`
}

type faceLibraryList struct {
	FPLibListInfo struct {
		FPLib []faceLibrary `json:"FPLib"`
	} `json:"FPLibListInfo"`
}

// UserSpec is everything needed to create or update a device user.
type UserSpec struct {
	EmployeeID string
	Name       string
	Enabled    bool
	ValidFrom  *time.Time
	ValidTo    *time.Time
}

func (s UserSpec) toRequest(now time.Time) userInfoRequest {
	begin := now
	if s.ValidFrom != nil {
		begin = *s.ValidFrom
	}
	end := now.AddDate(1, 0, 0)
	if s.ValidTo != nil {
		end = *s.ValidTo
	}

	return userInfoRequest{
		UserInfo: userInfo{
			EmployeeNo: s.EmployeeID,
			Name:       s.Name,
			UserType:   "normal",
			Valid: validWindow{
				Enable:    s.Enabled,
				BeginTime: begin.Format("2006-01-02") + "T00:00:00",
				EndTime:   end.Format("2006-01-02") + "T23:59:59",
			},
			DoorRight:         "1",
			RightPlan:         []rightPlan{{DoorNo: 1, PlanTemplateNo: "1"}},
			MaxFingerPrintNum: 0,
			MaxFaceNum:        1,
		},
	}
}

// UserExists checks for a user record with the given employee id.
func (c *Client) UserExists(ctx context.Context, employeeID string) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	body := userSearchRequest{
		UserInfoSearchCond: userSearchCond{
			SearchID:       uuid.NewString(),
			MaxResults:     1000,
			EmployeeNoList: []employeeNoEntry{{EmployeeNo: employeeID}},
		},
	}

	var result userSearchResponse
	resp, err := c.http.R().
		SetContext(reqCtx).
		SetBody(body).
		SetResult(&result).
		Post("/ISAPI/AccessControl/UserInfo/Search?format=json")
	if err != nil {
		return false, fmt.Errorf("user search failed: %w", err)
	}
	if !resp.IsSuccess() {
		return false, statusError("user search", resp)
	}

	exists := len(result.UserInfoSearch.UserInfo) > 0
	c.logger.Debug("User existence check",
		zap.String("employee_id", employeeID),
		zap.Bool("exists", exists),
	)
	return exists, nil
}

// CreateUser adds a new user record.
func (c *Client) CreateUser(ctx context.Context, spec UserSpec) error {
	reqCtx, cancel := context.WithTimeout(ctx, mutateTimeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(reqCtx).
		SetBody(spec.toRequest(time.Now())).
		Post("/ISAPI/AccessControl/UserInfo/Record?format=json")
	if err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	if !resp.IsSuccess() {
		return statusError("create user", resp)
	}
	return nil
}

// UpdateUser modifies an existing user record.
func (c *Client) UpdateUser(ctx context.Context, spec UserSpec) error {
	reqCtx, cancel := context.WithTimeout(ctx, mutateTimeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(reqCtx).
		SetBody(spec.toRequest(time.Now())).
		Put("/ISAPI/AccessControl/UserInfo/Modify?format=json")
	if err != nil {
		return fmt.Errorf("update user failed: %w", err)
	}
	if !resp.IsSuccess() {
		return statusError("update user", resp)
	}
	return nil
}

// DeleteUser removes a user record. Deleting an absent user succeeds on the
// device side, which is what makes queue-command deletes idempotent.
func (c *Client) DeleteUser(ctx context.Context, employeeID string) error {
	reqCtx, cancel := context.WithTimeout(ctx, mutateTimeout)
	defer cancel()

	var body userDeleteRequest
	body.UserInfoDelCond.EmployeeNoList = []employeeNoEntry{{EmployeeNo: employeeID}}

	resp, err := c.http.R().
		SetContext(reqCtx).
		SetBody(body).
		Put("/ISAPI/AccessControl/UserInfo/Delete?format=json")
	if err != nil {
		return fmt.Errorf("delete user failed: %w", err)
	}
	if !resp.IsSuccess() {
		return statusError("delete user", resp)
	}
	return nil
}

// EnsureFaceLibrary finds the blackFD face library, creating it when missing.
// Always leaves a usable FDID behind; any failure falls back to "1".
func (c *Client) EnsureFaceLibrary(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	var list faceLibraryList
	resp, err := c.http.R().
		SetContext(reqCtx).
		SetResult(&list).
		Get("/ISAPI/Intelligent/FDLib?format=json")
	if err == nil && resp.IsSuccess() {
		for _, lib := range list.FPLibListInfo.FPLib {
			if lib.FaceLibType == faceLibraryType && lib.FDID != "" {
				c.fdid = lib.FDID
				return
			}
		}
	}

	created := struct {
		FPLibInfo struct {
			FDID string `json:"FDID"`
		} `json:"FPLibInfo"`
	}{}
	createBody := map[string]any{
		"FPLibInfo": map[string]any{
			"faceLibType":   faceLibraryType,
			"name":          "Default Face Library",
			"libArmingType": "armingLib",
			"libAttribute":  "blackList",
		},
	}
	resp, err = c.http.R().
		SetContext(reqCtx).
		SetBody(createBody).
		SetResult(&created).
		Post("/ISAPI/Intelligent/FDLib?format=json")
	if err == nil && resp.IsSuccess() && created.FPLibInfo.FDID != "" {
		c.fdid = created.FPLibInfo.FDID
		return
	}

	c.logger.Warn("Could not resolve face library, using default",
		zap.String("fdid", defaultFaceLibraryID),
	)
	c.fdid = defaultFaceLibraryID
}

// UploadFace registers a face image for the user: multipart with a JSON
// metadata part (FaceDataRecord) and the JPEG bytes (FaceImage).
func (c *Client) UploadFace(ctx context.Context, employeeID, name string, image []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	meta, err := json.Marshal(map[string]string{
		"faceLibType": faceLibraryType,
		"FDID":        c.fdid,
		"FPID":        employeeID,
		"name":        name,
	})
	if err != nil {
		return fmt.Errorf("marshal face metadata: %w", err)
	}

	resp, err := c.http.R().
		SetContext(reqCtx).
		SetMultipartFields(
			&resty.MultipartField{
				Param:       "FaceDataRecord",
				ContentType: "application/json",
				Reader:      bytes.NewReader(meta),
			},
			&resty.MultipartField{
				Param:       "FaceImage",
				FileName:    employeeID + ".jpg",
				ContentType: "image/jpeg",
				Reader:      bytes.NewReader(image),
			},
		).
		Post("/ISAPI/Intelligent/FDLib/FaceDataRecord?format=json")
	if err != nil {
		return fmt.Errorf("face upload failed: %w", err)
	}
	if !resp.IsSuccess() {
		return statusError("face upload", resp)
	}
	return nil
}

func statusError(op string, resp *resty.Response) error {
	body := resp.Body()
	if len(body) > bodyExcerptLimit {
		body = body[:bodyExcerptLimit]
	}
	return fmt.Errorf("%s: HTTP %d: %s", op, resp.StatusCode(), string(body))
}
