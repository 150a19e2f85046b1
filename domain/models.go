package domain

import "io"

// ImportRequest is the task to import a single image URL into the host document.
type ImportRequest struct {
	URL string `json:"url"`
}

// StrategyKind names the transport that produced a fetched image.
type StrategyKind string

const (
	StrategyDirect   StrategyKind = "direct"
	StrategyProxy    StrategyKind = "proxy"
	StrategyCanvas   StrategyKind = "canvas"
	StrategyLowLevel StrategyKind = "lowlevel"
)

// FetchedImage is consumed once by the upload step and not retained afterward.
type FetchedImage struct {
	Bytes    []byte
	MIME     string
	Strategy StrategyKind
}

// MediaRef identifies media uploaded into the host. The pipeline only passes it along.
type MediaRef struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	MIME   string `json:"mtype,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	URI    string `json:"uri,omitempty"`
}

type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FillSpec is an image fill applied to a shape.
type FillSpec struct {
	FillOpacity float64  `json:"fill_opacity"`
	FillImage   MediaRef `json:"fill_image"`
}

// ShapeSpec describes the shape the pipeline asks the host to create.
type ShapeSpec struct {
	Type     string     `json:"type"`
	Geometry Geometry   `json:"geometry"`
	Fills    []FillSpec `json:"fills"`
}

type ShapeID string

// EventKind is the terminal or intermediate state reported to the UI.
type EventKind int

const (
	EventProgress EventKind = iota
	EventSuccess
	EventError
)

// MessageType returns the outbound UI message type for the kind.
func (k EventKind) MessageType() string {
	switch k {
	case EventSuccess:
		return MsgTypeImportSuccess
	case EventError:
		return MsgTypeImportError
	default:
		return MsgTypeImportProgress
	}
}

func (k EventKind) String() string {
	switch k {
	case EventSuccess:
		return "success"
	case EventError:
		return "error"
	default:
		return "progress"
	}
}

// ProgressEvent is emitted and forgotten; no history is kept.
type ProgressEvent struct {
	Kind    EventKind
	Message string
}

// FetchResponse is what a fetch strategy hands back before the body is materialized.
type FetchResponse struct {
	Body        io.ReadCloser
	ContentType string
}
