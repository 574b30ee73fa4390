package variables

// VariantKey is the discriminator field marking a serialized file reference.
const VariantKey = "__variant"

// FileVariant is the discriminator value identifying a file-typed variable.
const FileVariant = "FileVar"

// FileType categorizes the content a file reference points at.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeDocument FileType = "document"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
)

// File is the serialized representation of a file-typed variable produced
// by a node, e.g. a generated image or document. It is carried through
// outputs untouched and surfaced to clients on finish messages.
type File struct {
	Variant        string   `json:"__variant"`
	ID             string   `json:"id,omitempty"`
	TenantID       string   `json:"tenant_id,omitempty"`
	Type           FileType `json:"type,omitempty"`
	TransferMethod string   `json:"transfer_method,omitempty"`
	RemoteURL      string   `json:"remote_url,omitempty"`
	RelatedID      string   `json:"related_id,omitempty"`
	Filename       string   `json:"filename,omitempty"`
	Extension      string   `json:"extension,omitempty"`
	MimeType       string   `json:"mime_type,omitempty"`
	URL            string   `json:"url,omitempty"`
}

// NewFile returns a file reference tagged with the discriminator.
func NewFile(fileType FileType, url string) *File {
	return &File{
		Variant: FileVariant,
		Type:    fileType,
		URL:     url,
	}
}
