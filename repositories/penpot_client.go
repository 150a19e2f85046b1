package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

const (
	rpcUploadMedia = "/api/rpc/command/upload-file-media-object"
	rpcGetFile     = "/api/rpc/command/get-file"
	rpcUpdateFile  = "/api/rpc/command/update-file"

	// rootFrameID is the implicit top-level frame of every page.
	rootFrameID = "00000000-0000-0000-0000-000000000000"

	importedShapeName = "Imported image"
)

// PenpotClient talks to the Penpot RPC API and places shapes on a single page of a file.
type PenpotClient struct {
	http      *resty.Client
	fileID    string
	pageID    string
	sessionID string
	newID     func() string

	// update-file is rejected unless revn matches the server; one change at a time.
	mu sync.Mutex
}

type penpotError struct {
	Type string `json:"type"`
	Code string `json:"code"`
	Hint string `json:"hint"`
}

func (e *penpotError) message() string {
	switch {
	case e.Hint != "":
		return e.Hint
	case e.Code != "":
		return e.Code
	default:
		return e.Type
	}
}

type penpotMedia struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	MType  string `json:"mtype"`
}

type penpotFile struct {
	ID   string `json:"id"`
	Revn int64  `json:"revn"`
}

type penpotFillImage struct {
	ID              string `json:"id"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	MType           string `json:"mtype"`
	KeepAspectRatio bool   `json:"keepAspectRatio"`
}

type penpotFill struct {
	FillOpacity float64         `json:"fillOpacity"`
	FillImage   penpotFillImage `json:"fillImage"`
}

type penpotShape struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Name     string       `json:"name"`
	X        float64      `json:"x"`
	Y        float64      `json:"y"`
	Width    float64      `json:"width"`
	Height   float64      `json:"height"`
	FrameID  string       `json:"frameId"`
	ParentID string       `json:"parentId"`
	Fills    []penpotFill `json:"fills"`
}

type penpotChange struct {
	Type     string      `json:"type"`
	ID       string      `json:"id"`
	PageID   string      `json:"pageId"`
	FrameID  string      `json:"frameId"`
	ParentID string      `json:"parentId"`
	Obj      penpotShape `json:"obj"`
}

type penpotUpdateFile struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Revn      int64          `json:"revn"`
	Changes   []penpotChange `json:"changes"`
}

func NewPenpotClient(baseURL, token, fileID, pageID string, timeout time.Duration) *PenpotClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthScheme("Token").
		SetAuthToken(token).
		SetHeader("Accept", "application/json")

	return &PenpotClient{
		http:      client,
		fileID:    fileID,
		pageID:    pageID,
		sessionID: uuid.New().String(),
		newID:     func() string { return uuid.New().String() },
	}
}

func (c *PenpotClient) UploadMedia(ctx context.Context, kind string, data []byte, mimeType string) (domain.MediaRef, error) {
	if kind != domain.MediaKindImage {
		return domain.MediaRef{}, fmt.Errorf("unsupported media kind %q", kind)
	}

	name := "image." + extensionFor(mimeType)
	var media penpotMedia
	var perr penpotError
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"file-id":  c.fileID,
			"is-local": strconv.FormatBool(true),
			"name":     name,
		}).
		SetMultipartField("content", name, mimeType, bytes.NewReader(data)).
		SetResult(&media).
		SetError(&perr).
		Post(rpcUploadMedia)
	if err := checkResponse(resp, err, &perr); err != nil {
		return domain.MediaRef{}, fmt.Errorf("upload-file-media-object: %w", err)
	}
	if media.ID == "" {
		return domain.MediaRef{}, errors.New("upload-file-media-object: response has no media id")
	}

	if media.MType == "" {
		media.MType = mimeType
	}
	return domain.MediaRef{
		ID:     media.ID,
		Name:   media.Name,
		MIME:   media.MType,
		Width:  media.Width,
		Height: media.Height,
	}, nil
}

func (c *PenpotClient) CreateImageShape(ctx context.Context, spec domain.ShapeSpec) (domain.ShapeID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	revn, err := c.revision(ctx)
	if err != nil {
		return "", err
	}

	id := c.newID()
	shape := penpotShape{
		ID:       id,
		Type:     spec.Type,
		Name:     importedShapeName,
		X:        spec.Geometry.X,
		Y:        spec.Geometry.Y,
		Width:    spec.Geometry.Width,
		Height:   spec.Geometry.Height,
		FrameID:  rootFrameID,
		ParentID: rootFrameID,
	}
	for _, fill := range spec.Fills {
		shape.Fills = append(shape.Fills, penpotFill{
			FillOpacity: fill.FillOpacity,
			FillImage: penpotFillImage{
				ID:              fill.FillImage.ID,
				Width:           fill.FillImage.Width,
				Height:          fill.FillImage.Height,
				MType:           fill.FillImage.MIME,
				KeepAspectRatio: true,
			},
		})
	}

	var perr penpotError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(penpotUpdateFile{
			ID:        c.fileID,
			SessionID: c.sessionID,
			Revn:      revn,
			Changes: []penpotChange{{
				Type:     "add-obj",
				ID:       id,
				PageID:   c.pageID,
				FrameID:  rootFrameID,
				ParentID: rootFrameID,
				Obj:      shape,
			}},
		}).
		SetError(&perr).
		Post(rpcUpdateFile)
	if err := checkResponse(resp, err, &perr); err != nil {
		return "", fmt.Errorf("update-file: %w", err)
	}
	return domain.ShapeID(id), nil
}

func (c *PenpotClient) revision(ctx context.Context) (int64, error) {
	var file penpotFile
	var perr penpotError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", c.fileID).
		SetResult(&file).
		SetError(&perr).
		Get(rpcGetFile)
	if err := checkResponse(resp, err, &perr); err != nil {
		return 0, fmt.Errorf("get-file: %w", err)
	}
	return file.Revn, nil
}

func checkResponse(resp *resty.Response, err error, perr *penpotError) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		if msg := perr.message(); msg != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), msg)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode())
	}
	return nil
}
