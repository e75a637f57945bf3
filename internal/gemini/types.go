package gemini

// ImageInput is an uploaded image ready for inline transport.
type ImageInput struct {
	DataBase64 string
	MimeType   string
}
