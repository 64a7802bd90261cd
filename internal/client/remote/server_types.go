package remote

type manifestResponse struct {
	Files []manifestEntry `json:"files"`
}

type manifestEntry struct {
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	Revision  uint64 `json:"revision"`
	UpdatedAt int64  `json:"updated_at"`
	Size      int64  `json:"size"`
}

type syncRequest struct {
	Path           string  `json:"path"`
	Content        []byte  `json:"content"`
	ClientRevision *uint64 `json:"client_revision,omitempty"`
}

type syncResponse struct {
	Success  bool   `json:"success"`
	Path     string `json:"path,omitempty"`
	Revision uint64 `json:"revision"`
	Hash     string `json:"hash"`
}

type batchSyncRequest struct {
	Files   []*syncRequest `json:"files"`
	Message string         `json:"message,omitempty"`
}

type batchSyncResponse struct {
	Success  bool            `json:"success"`
	CommitID string          `json:"commit_id"`
	Results  []*syncResponse `json:"results"`
}

type errorResponse struct {
	Code           string `json:"code"`
	Error          string `json:"error"`
	Path           string `json:"path,omitempty"`
	ServerRevision uint64 `json:"server_revision,omitempty"`
	ServerHash     string `json:"server_hash,omitempty"`
}
