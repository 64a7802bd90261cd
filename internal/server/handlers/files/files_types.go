package files

type ManifestEntry struct {
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	Revision  uint64 `json:"revision"`
	UpdatedAt int64  `json:"updated_at"`
	Size      int64  `json:"size"`
}

type ManifestResponse struct {
	Files []*ManifestEntry `json:"files"`
}

// SyncRequest carries base64 content. A missing client_revision claims no
// prior knowledge of the path.
type SyncRequest struct {
	Path           string  `json:"path"`
	Content        []byte  `json:"content"`
	ClientRevision *uint64 `json:"client_revision"`
}

type SyncResponse struct {
	Success  bool   `json:"success"`
	Path     string `json:"path"`
	Revision uint64 `json:"revision"`
	Hash     string `json:"hash"`
}

type BatchSyncRequest struct {
	Files   []*SyncRequest `json:"files"`
	Message string         `json:"message"`
}

type BatchSyncResponse struct {
	Success  bool            `json:"success"`
	CommitID string          `json:"commit_id"`
	Results  []*SyncResponse `json:"results"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}
