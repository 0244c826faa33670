package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"infrasite/internal/database"
	"infrasite/internal/database/dbtest"
)

type cmsFixture struct {
	db     *gorm.DB
	kv     *fakeKV
	router *gin.Engine
}

func newCMSFixture(t *testing.T, role string) *cmsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := dbtest.Open(t)
	kv := newFakeKV()
	cms := NewCMSHandler(db, newPublicCache(kv, 5*time.Minute, nil))

	r := gin.New()
	v1 := r.Group("/v1")
	v1.GET("/articles", cms.Articles.PublicList)
	v1.GET("/articles/:slug", cms.ArticleBySlug)
	v1.GET("/services", cms.Services.PublicList)
	v1.GET("/pages/:page", cms.PageSections)
	v1.GET("/menus/:location", cms.MenuTree)
	v1.GET("/settings", cms.PublicSettings)

	admin := v1.Group("/admin", withUser(1, role))
	cms.Articles.Register(admin)
	cms.Services.Register(admin)
	cms.PageContents.Register(admin)
	cms.Menus.Register(admin)
	cms.MenuItems.Register(admin)
	cms.SiteSettings.Register(admin)
	return &cmsFixture{db: db, kv: kv, router: r}
}

func (f *cmsFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return serve(f.router, req)
}

func decodeID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil || out.ID == 0 {
		t.Fatalf("decode id from %s: %v", w.Body.String(), err)
	}
	return strconv.FormatUint(uint64(out.ID), 10)
}

func TestCMSCreate_GeneratesSlugAndValidates(t *testing.T) {
	f := newCMSFixture(t, database.RoleEditor)

	w := f.do(t, http.MethodPost, "/v1/admin/articles", `{"title":"Đám mây riêng cho doanh nghiệp","published":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var article database.Article
	if err := json.Unmarshal(w.Body.Bytes(), &article); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if article.Slug != "dam-may-rieng-cho-doanh-nghiep" {
		t.Fatalf("unexpected slug %q", article.Slug)
	}
	if article.PublishedAt == nil {
		t.Fatalf("published article should get published_at")
	}

	w = f.do(t, http.MethodPost, "/v1/admin/articles", `{"excerpt":"no title"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"title"`) {
		t.Fatalf("expected field error on title, got %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/v1/admin/articles", `{"title":"Other","slug":"dam-may-rieng-cho-doanh-nghiep"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate slug, got %d %s", w.Code, w.Body.String())
	}
}

func TestCMSUpdate_PatchesOnlyGivenFields(t *testing.T) {
	f := newCMSFixture(t, database.RoleEditor)

	w := f.do(t, http.MethodPost, "/v1/admin/services", `{"name":"Cloud VPS","category":"cloud","summary":"fast","price_from":150000}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	id := decodeID(t, w)

	w = f.do(t, http.MethodPatch, "/v1/admin/services/"+id, `{"summary":"faster"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	var svc database.Service
	if err := f.db.First(&svc, id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if svc.Summary != "faster" || svc.Name != "Cloud VPS" || svc.PriceFrom != 150000 || !svc.Active {
		t.Fatalf("unexpected record after patch %+v", svc)
	}

	w = f.do(t, http.MethodPatch, "/v1/admin/services/"+id, `{"category":"spaceship"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid category, got %d", w.Code)
	}

	if w := f.do(t, http.MethodDelete, "/v1/admin/services/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/admin/services/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCMSPublicList_CachesAndInvalidates(t *testing.T) {
	f := newCMSFixture(t, database.RoleEditor)

	f.do(t, http.MethodPost, "/v1/admin/articles", `{"title":"Visible","published":true}`)
	f.do(t, http.MethodPost, "/v1/admin/articles", `{"title":"Draft"}`)

	w := f.do(t, http.MethodGet, "/v1/articles", "")
	if w.Code != http.StatusOK {
		t.Fatalf("public list: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Visible") || strings.Contains(w.Body.String(), "Draft") {
		t.Fatalf("public list should only contain published articles: %s", w.Body.String())
	}
	key := publicCacheKey("articles", "")
	if !f.kv.has(key) {
		t.Fatalf("expected %s to be cached", key)
	}

	w = f.do(t, http.MethodPost, "/v1/admin/articles", `{"title":"Second","published":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	if f.kv.has(key) {
		t.Fatalf("mutation should invalidate %s", key)
	}
	if w := f.do(t, http.MethodGet, "/v1/articles", ""); !strings.Contains(w.Body.String(), "Second") {
		t.Fatalf("fresh list should include new article: %s", w.Body.String())
	}
}

func TestCMSPublicList_FallsThroughWhenCacheFails(t *testing.T) {
	f := newCMSFixture(t, database.RoleEditor)
	f.do(t, http.MethodPost, "/v1/admin/articles", `{"title":"Visible","published":true}`)
	f.kv.failGet = true

	w := f.do(t, http.MethodGet, "/v1/articles", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Visible") {
		t.Fatalf("expected database fallback, got %d %s", w.Code, w.Body.String())
	}
}

func TestCMSMenuTree(t *testing.T) {
	f := newCMSFixture(t, database.RoleAdmin)

	w := f.do(t, http.MethodPost, "/v1/admin/menus", `{"name":"Header","location":"Header"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create menu: %d %s", w.Code, w.Body.String())
	}
	menuID := decodeID(t, w)

	w = f.do(t, http.MethodPost, "/v1/admin/menu-items", `{"menu_id":`+menuID+`,"label":"Dịch vụ","url":"/services","sort_order":1}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create root: %d %s", w.Code, w.Body.String())
	}
	rootID := decodeID(t, w)
	w = f.do(t, http.MethodPost, "/v1/admin/menu-items", `{"menu_id":`+menuID+`,"parent_id":`+rootID+`,"label":"Hosting","url":"/services/hosting"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create child: %d %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, "/v1/admin/menu-items", `{"menu_id":`+menuID+`,"parent_id":9999,"label":"Broken","url":"/x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing parent, got %d", w.Code)
	}
	w = f.do(t, http.MethodPatch, "/v1/admin/menu-items/"+rootID, `{"parent_id":`+rootID+`}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self parent, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/v1/menus/header", "")
	if w.Code != http.StatusOK {
		t.Fatalf("menu tree: %d %s", w.Code, w.Body.String())
	}
	var resp menuResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || len(resp.Items[0].Children) != 1 || resp.Items[0].Children[0].Label != "Hosting" {
		t.Fatalf("unexpected tree %+v", resp.Items)
	}

	if w := f.do(t, http.MethodGet, "/v1/menus/footer", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown menu, got %d", w.Code)
	}
}

func TestCMSMenuItemDelete_DetachesChildren(t *testing.T) {
	f := newCMSFixture(t, database.RoleAdmin)

	w := f.do(t, http.MethodPost, "/v1/admin/menus", `{"name":"Footer","location":"footer"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create menu: %d %s", w.Code, w.Body.String())
	}
	menuID := decodeID(t, w)
	w = f.do(t, http.MethodPost, "/v1/admin/menu-items", `{"menu_id":`+menuID+`,"label":"Công ty","url":"/about"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create parent: %d %s", w.Code, w.Body.String())
	}
	parentID := decodeID(t, w)
	w = f.do(t, http.MethodPost, "/v1/admin/menu-items", `{"menu_id":`+menuID+`,"parent_id":`+parentID+`,"label":"Liên hệ","url":"/contact"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create child: %d %s", w.Code, w.Body.String())
	}
	childID := decodeID(t, w)

	// Warm the cache so the delete has to invalidate it.
	if w := f.do(t, http.MethodGet, "/v1/menus/footer", ""); w.Code != http.StatusOK {
		t.Fatalf("menu tree: %d %s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodDelete, "/v1/admin/menu-items/"+parentID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete parent: %d %s", w.Code, w.Body.String())
	}

	var child database.MenuItem
	if err := f.db.Where("id = ?", childID).First(&child).Error; err != nil {
		t.Fatalf("load child: %v", err)
	}
	if child.ParentID != nil {
		t.Fatalf("expected parent_id to be cleared, got %d", *child.ParentID)
	}

	w = f.do(t, http.MethodGet, "/v1/menus/footer", "")
	if w.Code != http.StatusOK {
		t.Fatalf("menu tree: %d %s", w.Code, w.Body.String())
	}
	var resp menuResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Label != "Liên hệ" {
		t.Fatalf("expected the child as the only root, got %+v", resp.Items)
	}

	if w := f.do(t, http.MethodPatch, "/v1/admin/menu-items/"+childID, `{"label":"Liên hệ ngay"}`); w.Code != http.StatusOK {
		t.Fatalf("patch detached child: %d %s", w.Code, w.Body.String())
	}
}

func TestCMSPublicSettingsAndPages(t *testing.T) {
	f := newCMSFixture(t, database.RoleAdmin)

	f.do(t, http.MethodPost, "/v1/admin/site-settings", `{"key":"hotline","value":"1900 1234","public":true}`)
	f.do(t, http.MethodPost, "/v1/admin/site-settings", `{"key":"smtp_password","value":"secret"}`)

	w := f.do(t, http.MethodGet, "/v1/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("settings: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "1900 1234") || strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("only public settings expected: %s", w.Body.String())
	}

	if w := f.do(t, http.MethodGet, "/v1/pages/home", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty page, got %d", w.Code)
	}
	f.do(t, http.MethodPost, "/v1/admin/page-contents", `{"page":"Home","section":"hero","title":"Hạ tầng CNTT"}`)
	w = f.do(t, http.MethodGet, "/v1/pages/home", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "hero") {
		t.Fatalf("page sections: %d %s", w.Code, w.Body.String())
	}
}
