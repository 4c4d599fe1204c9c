package httpdto

// AttachmentResponse is returned after a successful upload. Clients
// are expected to reference the id from inside an encrypted message;
// the relay never learns what the blob is.
type AttachmentResponse struct {
	ID         string `json:"id"`
	Key        string `json:"key"`
	Size       int    `json:"size"`
	URL        string `json:"url,omitempty"`
	UploadedAt string `json:"uploaded_at"`
}
