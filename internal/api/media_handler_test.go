package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"infrasite/internal/database"
	"infrasite/internal/database/dbtest"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newMultipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func newMediaRouter(h *MediaHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/v1/admin/media", withUser(3, database.RoleEditor))
	g.POST("", h.Upload)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	return r
}

func TestMediaUpload_StoresObjectAndRow(t *testing.T) {
	db := dbtest.Open(t)
	store := newFakeStorage()
	h := NewMediaHandler(db, store, "")
	h.now = func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) }
	router := newMediaRouter(h)

	body, contentType := newMultipartUpload(t, "logo.png", pngHeader, map[string]string{"title": " Logo ", "alt": "company logo"})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/media", body)
	req.Header.Set("Content-Type", contentType)
	w := serve(router, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	var resp mediaResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.ObjectKey, "media/2026/03/") || !strings.HasSuffix(resp.ObjectKey, ".png") {
		t.Fatalf("unexpected object key %q", resp.ObjectKey)
	}
	if resp.Title != "Logo" || resp.Alt != "company logo" || resp.UploadedBy != 3 {
		t.Fatalf("unexpected row %+v", resp.Media)
	}
	if resp.URL == "" {
		t.Fatalf("expected presigned url")
	}
	if _, ok := store.uploaded[resp.ObjectKey]; !ok {
		t.Fatalf("object %s not uploaded", resp.ObjectKey)
	}
}

func TestMediaUpload_RejectsUnsupportedType(t *testing.T) {
	db := dbtest.Open(t)
	store := newFakeStorage()
	router := newMediaRouter(NewMediaHandler(db, store, ""))

	body, contentType := newMultipartUpload(t, "run.sh", []byte("#!/bin/sh\necho hi\n"), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/media", body)
	req.Header.Set("Content-Type", contentType)
	w := serve(router, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 got %d body=%s", w.Code, w.Body.String())
	}
	if len(store.uploaded) != 0 {
		t.Fatalf("nothing should be uploaded")
	}
}

func TestMediaUpload_RejectsOversize(t *testing.T) {
	db := dbtest.Open(t)
	h := NewMediaHandler(db, newFakeStorage(), "")
	h.maxBytes = 8
	router := newMediaRouter(h)

	body, contentType := newMultipartUpload(t, "logo.png", pngHeader, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/media", body)
	req.Header.Set("Content-Type", contentType)
	w := serve(router, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestMediaUpdateAndDelete(t *testing.T) {
	db := dbtest.Open(t)
	store := newFakeStorage()
	router := newMediaRouter(NewMediaHandler(db, store, ""))

	media := database.Media{FileName: "a.png", ObjectKey: "media/2026/03/abc.png", ContentType: "image/png", Size: 10}
	if err := db.Create(&media).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	path := "/v1/admin/media/" + strconv.FormatUint(uint64(media.ID), 10)

	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"alt":"new alt"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var stored database.Media
	if err := db.First(&stored, media.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Alt != "new alt" {
		t.Fatalf("alt not updated: %+v", stored)
	}

	w = serve(router, httptest.NewRequest(http.MethodDelete, path, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d body=%s", w.Code, w.Body.String())
	}
	if len(store.deleted) != 1 || store.deleted[0] != media.ObjectKey {
		t.Fatalf("expected object delete, got %v", store.deleted)
	}
	var count int64
	db.Model(&database.Media{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected row removed, %d left", count)
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, path, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}
