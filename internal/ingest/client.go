// Package ingest talks to the ingestion service that receives picture
// batches and fabric movement updates.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/fabric.inspect/internal/capture"
	"github.com/banshee-data/fabric.inspect/internal/version"
)

// ErrUnexpectedStatus is returned for any non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status from ingestion service")

const (
	pingPath          = "/ping"
	picturesBatchPath = "/pictures_batch"
	movementPath      = "/fabric_movement"

	maxErrorBody = 512
)

// Client sends rig output to the ingestion service.
type Client struct {
	baseURL   string
	http      HTTPClient
	userAgent string
}

// NewClient returns a client for the service at baseURL. A nil HTTPClient
// uses http.DefaultClient.
func NewClient(baseURL string, hc HTTPClient) *Client {
	if hc == nil {
		hc = NewStandardClient(nil)
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      hc,
		userAgent: version.UserAgent(),
	}
}

// BaseURL returns the service root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

type pictureJSON struct {
	Picture          string  `json:"picture"`
	ISO              int     `json:"iso"`
	ExposureTime     float64 `json:"exposure_time"`
	DiaphragmOpening float64 `json:"diaphragm_opening"`
	PictureShape     []int   `json:"picture_shape"`
}

type stereoJSON struct {
	Left  pictureJSON `json:"left"`
	Right pictureJSON `json:"right"`
}

type lightJSON struct {
	Light        string     `json:"light"`
	CreationDate float64    `json:"creation_date"`
	Velocity     float64    `json:"velocity"`
	Displacement float64    `json:"displacement"`
	Pictures     stereoJSON `json:"pictures"`
}

type picturesBatchJSON struct {
	Lights []lightJSON `json:"lights"`
}

type movementJSON struct {
	Velocity     float64 `json:"velocity"`
	Displacement float64 `json:"displacement"`
}

func encodePicture(p capture.Picture) pictureJSON {
	shape := p.Shape
	if shape == nil {
		shape = []int{}
	}
	return pictureJSON{
		Picture:          base64.StdEncoding.EncodeToString(p.Pixels),
		ISO:              p.ISO,
		ExposureTime:     p.ExposureTime,
		DiaphragmOpening: p.Aperture,
		PictureShape:     shape,
	}
}

// unixSeconds returns t as fractional seconds since the epoch.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func encodeBatch(b *capture.Batch) picturesBatchJSON {
	out := picturesBatchJSON{Lights: make([]lightJSON, 0, len(b.Shots))}
	for _, s := range b.Shots {
		out.Lights = append(out.Lights, lightJSON{
			Light:        s.Record.Light.String(),
			CreationDate: unixSeconds(s.Record.CapturedAt),
			Velocity:     s.Velocity,
			Displacement: s.Displacement,
			Pictures: stereoJSON{
				Left:  encodePicture(s.Record.Left),
				Right: encodePicture(s.Record.Right),
			},
		})
	}
	return out
}

// Ping checks that the service is up.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, pingPath, "", nil)
}

// SendPicturesBatch posts both shots of a batch.
func (c *Client) SendPicturesBatch(ctx context.Context, b *capture.Batch) error {
	if b == nil {
		return errors.New("nil batch")
	}
	return c.do(ctx, http.MethodPost, picturesBatchPath, b.ID, encodeBatch(b))
}

// SendFabricMovement posts the current velocity and displacement.
func (c *Client) SendFabricMovement(ctx context.Context, velocity, displacement float64) error {
	return c.do(ctx, http.MethodPost, movementPath, "", movementJSON{Velocity: velocity, Displacement: displacement})
}

func (c *Client) do(ctx context.Context, method, path, requestID string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnexpectedStatus, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
