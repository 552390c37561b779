package domain

// WorkerInfo is the read-only view of a connected worker exposed by the
// status API and the operator console.
type WorkerInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}
