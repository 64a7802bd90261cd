package ws

type ClientInfo struct {
	DeviceID string
	IPAddr   string
	Version  string
}
