package gateway

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hikbridge/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(models.DeviceConfig{
		IP:       "127.0.0.1",
		Username: "admin",
		Password: "secret",
		HTTPPort: 80,
	}, zap.NewNop())
	c.http.SetBaseURL(srv.URL)
	return c, srv
}

func TestUserExists_True(t *testing.T) {
	var gotPath string
	var gotBody userSearchRequest

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"UserInfoSearch":{"UserInfo":[{"employeeNo":"42"}]}}`)
	}))

	exists, err := c.UserExists(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, "/ISAPI/AccessControl/UserInfo/Search", gotPath)
	require.Len(t, gotBody.UserInfoSearchCond.EmployeeNoList, 1)
	assert.Equal(t, "42", gotBody.UserInfoSearchCond.EmployeeNoList[0].EmployeeNo)
	assert.NotEmpty(t, gotBody.UserInfoSearchCond.SearchID)
}

func TestUserExists_False(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"UserInfoSearch":{"UserInfo":[]}}`)
	}))

	exists, err := c.UserExists(context.Background(), "42")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateUser_SendsUserInfo(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody userInfoRequest

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	err := c.CreateUser(context.Background(), UserSpec{
		EmployeeID: "100005",
		Name:       "Jane Doe",
		Enabled:    true,
		ValidFrom:  &from,
		ValidTo:    &to,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/ISAPI/AccessControl/UserInfo/Record", gotPath)
	assert.Equal(t, "100005", gotBody.UserInfo.EmployeeNo)
	assert.Equal(t, "Jane Doe", gotBody.UserInfo.Name)
	assert.Equal(t, "normal", gotBody.UserInfo.UserType)
	assert.Equal(t, "2024-01-02T00:00:00", gotBody.UserInfo.Valid.BeginTime)
	assert.Equal(t, "2025-06-30T23:59:59", gotBody.UserInfo.Valid.EndTime)
	assert.Equal(t, 1, gotBody.UserInfo.MaxFaceNum)
}

func TestUpdateUser_UsesPut(t *testing.T) {
	var gotMethod, gotPath string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	err := c.UpdateUser(context.Background(), UserSpec{EmployeeID: "7", Name: "X", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/ISAPI/AccessControl/UserInfo/Modify", gotPath)
}

func TestDeleteUser(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody userDeleteRequest

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.DeleteUser(context.Background(), "100005"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/ISAPI/AccessControl/UserInfo/Delete", gotPath)
	require.Len(t, gotBody.UserInfoDelCond.EmployeeNoList, 1)
	assert.Equal(t, "100005", gotBody.UserInfoDelCond.EmployeeNoList[0].EmployeeNo)
}

func TestStatusError_CarriesExcerpt(t *testing.T) {
	// Not 401: the digest transport consumes 401 responses for its
	// challenge handshake before the client ever sees them.
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"statusString":"Device Error"}`)
	}))

	err := c.DeleteUser(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Contains(t, err.Error(), "Device Error")
}

func TestEnsureFaceLibrary_FindsExisting(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"FPLibListInfo":{"FPLib":[
			{"FDID":"3","faceLibType":"whiteFD"},
			{"FDID":"5","faceLibType":"blackFD"}
		]}}`)
	}))

	c.EnsureFaceLibrary(context.Background())
	assert.Equal(t, "5", c.fdid)
}

func TestEnsureFaceLibrary_CreatesWhenMissing(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			io.WriteString(w, `{"FPLibListInfo":{"FPLib":[]}}`)
			return
		}
		io.WriteString(w, `{"FPLibInfo":{"FDID":"9"}}`)
	}))

	c.EnsureFaceLibrary(context.Background())
	assert.Equal(t, "9", c.fdid)
}

func TestEnsureFaceLibrary_FallsBackToDefault(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	c.EnsureFaceLibrary(context.Background())
	assert.Equal(t, "1", c.fdid)
}

func TestUploadFace_MultipartParts(t *testing.T) {
	image := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	var metaPart map[string]string
	var imagePart []byte

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISAPI/Intelligent/FDLib/FaceDataRecord", r.URL.Path)

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, err := io.ReadAll(part)
			require.NoError(t, err)
			switch part.FormName() {
			case "FaceDataRecord":
				require.NoError(t, json.Unmarshal(data, &metaPart))
			case "FaceImage":
				imagePart = data
			}
		}
		w.WriteHeader(http.StatusOK)
	}))

	c.fdid = "5"
	require.NoError(t, c.UploadFace(context.Background(), "42", "Jane Doe", image))

	assert.Equal(t, "blackFD", metaPart["faceLibType"])
	assert.Equal(t, "5", metaPart["FDID"])
	assert.Equal(t, "42", metaPart["FPID"])
	assert.Equal(t, "Jane Doe", metaPart["name"])
	assert.Equal(t, image, imagePart)
}
