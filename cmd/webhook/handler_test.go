package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

type memDedup struct {
	seen      map[string]bool
	forgotten int
	err       error
}

func (m *memDedup) Seen(_ context.Context, hash string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	dup := m.seen[hash]
	m.seen[hash] = true
	return dup, nil
}

func (m *memDedup) Forget(_ context.Context, hash string) error {
	delete(m.seen, hash)
	m.forgotten++
	return nil
}

type fakeAppeals struct {
	calls int
	err   error
	last  [2]int64
}

func (f *fakeAppeals) Create(_ context.Context, subjectID, punishmentID int64, text string) (domain.Appeal, error) {
	f.calls++
	f.last = [2]int64{subjectID, punishmentID}
	if f.err != nil {
		return domain.Appeal{}, f.err
	}
	return domain.Appeal{ID: 77, SubjectID: subjectID, PunishmentID: punishmentID, Text: text}, nil
}

const validBody = `{"subject_id":"123456789","punishment_id":"42","text":"fue un malentendido, pido revisión"}`

func newIntake() (*intake, *memDedup, *fakeAppeals) {
	d := &memDedup{}
	a := &fakeAppeals{}
	return &intake{secret: "s3cret", header: "x-kronoz-secret", dedup: d, appeals: a}, d, a
}

func request(body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: "/appeals",
		Headers: map[string]string{"x-kronoz-secret": "s3cret"},
		Body:    body,
	}
}

func decode(t *testing.T, resp events.APIGatewayV2HTTPResponse) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	return out
}

func TestIntakeCreatesAppeal(t *testing.T) {
	h, _, a := newIntake()
	resp, err := h.handle(context.Background(), request(validBody))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	body := decode(t, resp)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(77), body["appeal_id"])
	assert.Equal(t, [2]int64{123456789, 42}, a.last)
}

func TestIntakeRejectsBadSecret(t *testing.T) {
	h, _, a := newIntake()
	req := request(validBody)
	req.Headers = map[string]string{"x-kronoz-secret": "nope"}
	resp, _ := h.handle(context.Background(), req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, a.calls)

	h.secret = ""
	resp, _ = h.handle(context.Background(), request(validBody))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "sin secreto configurado no se acepta nada")
}

func TestIntakeSecretFromQuery(t *testing.T) {
	h, _, _ := newIntake()
	req := request(validBody)
	req.Headers = nil
	req.QueryStringParameters = map[string]string{"wh": "s3cret"}
	resp, _ := h.handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntakeBase64(t *testing.T) {
	h, _, a := newIntake()
	req := request(base64.StdEncoding.EncodeToString([]byte(validBody)))
	req.IsBase64Encoded = true
	resp, _ := h.handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, a.calls)

	req.Body = "%%%"
	resp, _ = h.handle(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIntakeBadPayload(t *testing.T) {
	h, _, a := newIntake()
	for _, body := range []string{
		`not json`,
		`{"subject_id":"abc","punishment_id":"1","text":"x"}`,
		`{"subject_id":"1","text":"x"}`,
	} {
		resp, _ := h.handle(context.Background(), request(body))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	assert.Zero(t, a.calls)
}

func TestIntakeDuplicate(t *testing.T) {
	h, _, a := newIntake()
	_, _ = h.handle(context.Background(), request(validBody))
	resp, _ := h.handle(context.Background(), request(validBody))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["duplicate"])
	assert.Equal(t, 1, a.calls)
}

func TestIntakeDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", domain.Validation(domain.CodeInvalidArgument, "texto muy corto"), http.StatusBadRequest},
		{"not found", domain.NotFound("no existe"), http.StatusNotFound},
		{"conflict", domain.Conflict(domain.CodeNotOwner, "no es tuya"), http.StatusConflict},
		{"storage", domain.Storage(errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, d, a := newIntake()
			a.err = tc.err
			resp, _ := h.handle(context.Background(), request(validBody))
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, false, decode(t, resp)["ok"])
			assert.Equal(t, 1, d.forgotten, "el hash se libera para permitir reintento")

			// el reintento llega de nuevo al servicio
			a.err = nil
			resp, _ = h.handle(context.Background(), request(validBody))
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, 2, a.calls)
		})
	}
}

func TestIntakeDedupDown(t *testing.T) {
	h, d, a := newIntake()
	d.err = errors.New("db down")
	resp, _ := h.handle(context.Background(), request(validBody))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Zero(t, a.calls)
}
