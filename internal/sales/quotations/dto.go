package quotations

// CreateQuotationRequest starts a new quotation at version 1.
type CreateQuotationRequest struct {
	Fields      Fields      `json:"fields"`
	EditorState EditorState `json:"editor_state"`
	Templates   Templates   `json:"templates"`
}

type ListQuotationsRequest struct {
	BaseNumber *string `json:"base_number,omitempty"`
	ActiveOnly bool    `json:"active_only"`
}
