package remote

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/imroc/req/v3"
	"github.com/openmined/vaultsync/internal/version"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderVersion   = "X-Vaultsync-Version"
	HeaderDeviceId  = "X-Vaultsync-Device-Id"

	defaultTimeout = 30 * time.Second
)

var (
	deviceIDOnce sync.Once
	deviceID     string
)

// DeviceID is a per machine identifier scoped to this application. It is
// sent with every request and used as the origin of server events.
func DeviceID() string {
	deviceIDOnce.Do(func() {
		id, err := machineid.ProtectedID(version.AppName)
		if err != nil || len(id) < 16 {
			deviceID = "unknown"
			return
		}
		deviceID = id[:16]
	})
	return deviceID
}

// newHTTPClient returns a req client with the headers and codecs shared by all backends.
func newHTTPClient(baseURL, token string) *req.Client {
	c := req.C().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonHeader(HeaderDeviceId, DeviceID()).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if token != "" {
		c.SetCommonBearerAuthToken(token)
	}
	return c
}

// escapePath escapes each segment of a vault path for use in a URL path.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// responseError maps a failed request to one of the package errors.
func responseError(resp *req.Response, requestErr error, op string) error {
	if requestErr != nil {
		return fmt.Errorf("remote: %s: %w", op, requestErr)
	}

	if resp.IsErrorState() {
		msg := ""
		if body, err := resp.ToString(); err == nil && len(body) <= 512 {
			msg = body
		}
		return &StatusError{Op: op, StatusCode: resp.GetStatusCode(), Message: msg}
	}

	return nil
}
