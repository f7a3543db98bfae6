package models

import "time"

// AuthContext is a bearer credential handed over by the authorization
// handshake. It is passed by value and lives for one pipeline run.
type AuthContext struct {
	BearerToken   string    // Opaque OAuth2 access token
	GrantedScopes []string  // Scopes granted with the token
	Expiry        time.Time // Zero when the issuer did not report one
}

// HasScope reports whether scope was granted with the token.
func (a AuthContext) HasScope(scope string) bool {
	for _, s := range a.GrantedScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// FolderRef identifies a remote Drive folder.
type FolderRef struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"name" yaml:"name"`
}

// ImageAsset is one image-typed file found inside a folder.
type ImageAsset struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	MimeType        string `json:"mimeType" yaml:"mimeType"`
	ContentLocation string `json:"contentLocation" yaml:"contentLocation"` // Drive media URI or gs:// URI
}

// ExtractionResult is the outcome of OCR for a single asset.
type ExtractionResult struct {
	Index   int        // Position of the asset in folder enumeration
	Asset   ImageAsset // Source image
	Text    string     // Trimmed first annotation, empty when HasText is false
	HasText bool       // False when the service recognized nothing
	Failed  bool       // True when the OCR call failed for this asset
	Err     error      // Set together with Failed
}

// DestinationDocument is the spreadsheet that receives extracted values.
type DestinationDocument struct {
	ID             string `json:"id" yaml:"id"`
	LinkedFolderID string `json:"linkedFolderId" yaml:"linkedFolderId"`
	Created        bool   `json:"created" yaml:"created"` // True when provisioned by this call
}

// RunState is a step of the folder-processing state machine.
type RunState string

const (
	StateAuthorized          RunState = "authorized"
	StateFolderResolved      RunState = "folder_resolved"
	StateImagesEnumerated    RunState = "images_enumerated"
	StateExtracted           RunState = "extracted"
	StateDestinationResolved RunState = "destination_resolved"
	StateWritten             RunState = "written"
	StateDone                RunState = "done"
	StateAborted             RunState = "aborted"
)

// PipelineOutcome is returned to the caller of a folder run. It is never
// persisted by the pipeline itself.
type PipelineOutcome struct {
	RunID              string        `json:"runId" yaml:"runId"`
	FolderID           string        `json:"folderId" yaml:"folderId"`
	FolderName         string        `json:"folderName,omitempty" yaml:"folderName,omitempty"`
	DestinationID      string        `json:"destinationId" yaml:"destinationId"`
	DestinationCreated bool          `json:"destinationCreated" yaml:"destinationCreated"`
	ExtractedValues    []string      `json:"extractedValues" yaml:"extractedValues"`
	PerImageFailures   int           `json:"perImageFailures" yaml:"perImageFailures"`
	ImagesFound        int           `json:"imagesFound" yaml:"imagesFound"`
	EmptyImages        int           `json:"emptyImages" yaml:"emptyImages"`
	DiscoveryDegraded  bool          `json:"discoveryDegraded" yaml:"discoveryDegraded"`
	State              RunState      `json:"state" yaml:"state"`
	Duration           time.Duration `json:"duration" yaml:"duration"`
}
