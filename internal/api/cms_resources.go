package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"infrasite/internal/api/middleware"
	"infrasite/internal/database"
)

const maxMenuDepth = 8

// CMSHandler groups the CMS resources and the public read endpoints built on them.
type CMSHandler struct {
	db    *gorm.DB
	cache *publicCache

	Articles     *ResourceHandler[database.Article]
	Services     *ResourceHandler[database.Service]
	Testimonials *ResourceHandler[database.Testimonial]
	PageContents *ResourceHandler[database.PageContent]
	Menus        *ResourceHandler[database.Menu]
	MenuItems    *ResourceHandler[database.MenuItem]
	SiteSettings *ResourceHandler[database.SiteSetting]
	Equipment    *ResourceHandler[database.Equipment]
}

func activeOnly(db *gorm.DB) *gorm.DB { return db.Where("active = ?", true) }

// NewCMSHandler wires every CMS table.
func NewCMSHandler(db *gorm.DB, cache *publicCache) *CMSHandler {
	return &CMSHandler{
		db:    db,
		cache: cache,
		Articles: newResourceHandler(db, cache, resourceConfig[database.Article]{
			Name:  "articles",
			Order: "created_at DESC, id DESC",
			Prepare: func(a *database.Article) {
				a.Slug = slugOrTitle(a.Slug, a.Title, "article")
				if a.Published && a.PublishedAt == nil {
					now := time.Now().UTC()
					a.PublishedAt = &now
				}
			},
			PublicScope: func(db *gorm.DB) *gorm.DB { return db.Where("published = ?", true) },
			PublicOrder: "published_at DESC, id DESC",
			CacheKeys: func(_ context.Context, _ *gorm.DB, a *database.Article) []string {
				return []string{publicCacheKey("articles", a.Slug)}
			},
		}),
		Services: newResourceHandler(db, cache, resourceConfig[database.Service]{
			Name:        "services",
			Defaults:    func(s *database.Service) { s.Active = true },
			Prepare:     func(s *database.Service) { s.Slug = slugOrTitle(s.Slug, s.Name, "service") },
			PublicScope: activeOnly,
		}),
		Testimonials: newResourceHandler(db, cache, resourceConfig[database.Testimonial]{
			Name: "testimonials",
			Defaults: func(t *database.Testimonial) {
				t.Active = true
				t.Rating = 5
			},
			PublicScope: activeOnly,
		}),
		PageContents: newResourceHandler(db, cache, resourceConfig[database.PageContent]{
			Name:     "page-contents",
			Order:    "page ASC, sort_order ASC, id ASC",
			Defaults: func(p *database.PageContent) { p.Active = true },
			Prepare: func(p *database.PageContent) {
				p.Page = strings.ToLower(strings.TrimSpace(p.Page))
				p.Section = strings.ToLower(strings.TrimSpace(p.Section))
			},
			CacheKeys: func(_ context.Context, _ *gorm.DB, p *database.PageContent) []string {
				return []string{publicCacheKey("pages", p.Page)}
			},
		}),
		Menus: newResourceHandler(db, cache, resourceConfig[database.Menu]{
			Name:     "menus",
			Order:    "location ASC, id ASC",
			Defaults: func(m *database.Menu) { m.Active = true },
			Prepare:  func(m *database.Menu) { m.Location = strings.ToLower(strings.TrimSpace(m.Location)) },
			CacheKeys: func(_ context.Context, _ *gorm.DB, m *database.Menu) []string {
				return []string{publicCacheKey("menus", m.Location)}
			},
		}),
		MenuItems: newResourceHandler(db, cache, resourceConfig[database.MenuItem]{
			Name:     "menu-items",
			Order:    "menu_id ASC, sort_order ASC, id ASC",
			Defaults: func(m *database.MenuItem) { m.Active = true },
			Check:    checkMenuItem,
			CacheKeys: func(ctx context.Context, db *gorm.DB, m *database.MenuItem) []string {
				var menu database.Menu
				if err := db.WithContext(ctx).Select("location").First(&menu, m.MenuID).Error; err != nil {
					return nil
				}
				return []string{publicCacheKey("menus", menu.Location)}
			},
			BeforeDelete: detachMenuChildren,
		}),
		SiteSettings: newResourceHandler(db, cache, resourceConfig[database.SiteSetting]{
			Name:     "site-settings",
			Order:    "\"group\" ASC, key ASC",
			Defaults: func(s *database.SiteSetting) { s.Group = "general" },
			Prepare:  func(s *database.SiteSetting) { s.Key = strings.TrimSpace(s.Key) },
			CacheKeys: func(context.Context, *gorm.DB, *database.SiteSetting) []string {
				return []string{publicCacheKey("settings", "")}
			},
		}),
		Equipment: newResourceHandler(db, cache, resourceConfig[database.Equipment]{
			Name:        "equipment",
			Defaults:    func(e *database.Equipment) { e.Active = true },
			Prepare:     func(e *database.Equipment) { e.SKU = strings.ToUpper(strings.TrimSpace(e.SKU)) },
			PublicScope: activeOnly,
		}),
	}
}

func slugOrTitle(slug, title, fallback string) string {
	if s := slugify(slug); s != "" {
		return s
	}
	if s := slugify(title); s != "" {
		return s
	}
	return fallback + "-" + time.Now().UTC().Format("20060102150405")
}

// detachMenuChildren promotes the children of a deleted item to root items.
func detachMenuChildren(tx *gorm.DB, item *database.MenuItem) error {
	return tx.Model(&database.MenuItem{}).
		Where("parent_id = ?", item.ID).
		Update("parent_id", nil).Error
}

func checkMenuItem(ctx context.Context, db *gorm.DB, item *database.MenuItem) map[string]string {
	fields := make(map[string]string)
	var menuCount int64
	if err := db.WithContext(ctx).Model(&database.Menu{}).Where("id = ?", item.MenuID).Count(&menuCount).Error; err != nil || menuCount == 0 {
		fields["menu_id"] = "menu does not exist"
		return fields
	}
	if item.ParentID == nil {
		return nil
	}
	if item.ID != 0 && *item.ParentID == item.ID {
		fields["parent_id"] = "an item cannot be its own parent"
		return fields
	}

	next := *item.ParentID
	for depth := 0; next != 0; depth++ {
		if depth >= maxMenuDepth {
			fields["parent_id"] = "menu is nested too deeply"
			return fields
		}
		var parent database.MenuItem
		if err := db.WithContext(ctx).First(&parent, next).Error; err != nil {
			fields["parent_id"] = "parent item does not exist"
			return fields
		}
		if parent.MenuID != item.MenuID {
			fields["parent_id"] = "parent item belongs to another menu"
			return fields
		}
		if item.ID != 0 && parent.ID == item.ID {
			fields["parent_id"] = "parent chain would form a cycle"
			return fields
		}
		next = 0
		if parent.ParentID != nil {
			next = *parent.ParentID
		}
	}
	return nil
}

// ArticleBySlug serves GET /v1/articles/:slug for published articles.
func (h *CMSHandler) ArticleBySlug(c *gin.Context) {
	ctx := c.Request.Context()
	slug := strings.TrimSpace(c.Param("slug"))

	var article database.Article
	err := h.cache.load(ctx, publicCacheKey("articles", slug), &article, func() error {
		return h.db.WithContext(ctx).Where("slug = ? AND published = ?", slug, true).First(&article).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "article not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load article failed", slog.String("slug", slug), slog.Any("error", err))
		Internal(c, "failed to load article")
		return
	}
	c.JSON(http.StatusOK, article)
}

type pageResponse struct {
	Page     string                 `json:"page"`
	Sections []database.PageContent `json:"sections"`
}

// PageSections serves GET /v1/pages/:page with its active sections in display order.
func (h *CMSHandler) PageSections(c *gin.Context) {
	ctx := c.Request.Context()
	page := strings.ToLower(strings.TrimSpace(c.Param("page")))

	resp := pageResponse{Page: page}
	err := h.cache.load(ctx, publicCacheKey("pages", page), &resp, func() error {
		resp.Sections = make([]database.PageContent, 0)
		return h.db.WithContext(ctx).
			Where("page = ? AND active = ?", page, true).
			Order(defaultResourceOrder).
			Find(&resp.Sections).Error
	})
	if err != nil {
		middleware.LoggerFromContext(c).Error("load page failed", slog.String("page", page), slog.Any("error", err))
		Internal(c, "failed to load page")
		return
	}
	if len(resp.Sections) == 0 {
		NotFound(c, "page not found")
		return
	}
	c.JSON(http.StatusOK, resp)
}

type menuNode struct {
	ID       uint       `json:"id"`
	Label    string     `json:"label"`
	URL      string     `json:"url"`
	NewTab   bool       `json:"new_tab"`
	Children []menuNode `json:"children,omitempty"`
}

type menuResponse struct {
	ID       uint       `json:"id"`
	Name     string     `json:"name"`
	Location string     `json:"location"`
	Items    []menuNode `json:"items"`
}

// MenuTree serves GET /v1/menus/:location as a nested tree of active items.
func (h *CMSHandler) MenuTree(c *gin.Context) {
	ctx := c.Request.Context()
	location := strings.ToLower(strings.TrimSpace(c.Param("location")))

	var resp menuResponse
	err := h.cache.load(ctx, publicCacheKey("menus", location), &resp, func() error {
		var menu database.Menu
		if err := h.db.WithContext(ctx).Where("location = ? AND active = ?", location, true).First(&menu).Error; err != nil {
			return err
		}
		var items []database.MenuItem
		if err := h.db.WithContext(ctx).
			Where("menu_id = ? AND active = ?", menu.ID, true).
			Order(defaultResourceOrder).
			Find(&items).Error; err != nil {
			return err
		}
		resp = menuResponse{
			ID:       menu.ID,
			Name:     menu.Name,
			Location: menu.Location,
			Items:    buildMenuTree(items),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "menu not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load menu failed", slog.String("location", location), slog.Any("error", err))
		Internal(c, "failed to load menu")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// buildMenuTree nests items under their parents, keeping input order.
// Items whose parent is missing or inactive are dropped.
func buildMenuTree(items []database.MenuItem) []menuNode {
	present := make(map[uint]struct{}, len(items))
	for _, it := range items {
		present[it.ID] = struct{}{}
	}
	children := make(map[uint][]database.MenuItem)
	var roots []database.MenuItem
	for _, it := range items {
		switch {
		case it.ParentID == nil:
			roots = append(roots, it)
		default:
			if _, ok := present[*it.ParentID]; ok {
				children[*it.ParentID] = append(children[*it.ParentID], it)
			}
		}
	}

	var build func(level []database.MenuItem, depth int) []menuNode
	build = func(level []database.MenuItem, depth int) []menuNode {
		nodes := make([]menuNode, 0, len(level))
		for _, it := range level {
			node := menuNode{ID: it.ID, Label: it.Label, URL: it.URL, NewTab: it.NewTab}
			if depth < maxMenuDepth {
				if kids := children[it.ID]; len(kids) > 0 {
					node.Children = build(kids, depth+1)
				}
			}
			nodes = append(nodes, node)
		}
		return nodes
	}
	return build(roots, 1)
}

// PublicSettings serves GET /v1/settings as a key/value map of public settings.
func (h *CMSHandler) PublicSettings(c *gin.Context) {
	ctx := c.Request.Context()

	settings := make(map[string]string)
	err := h.cache.load(ctx, publicCacheKey("settings", ""), &settings, func() error {
		var rows []database.SiteSetting
		if err := h.db.WithContext(ctx).Where("public = ?", true).Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			settings[r.Key] = r.Value
		}
		return nil
	})
	if err != nil {
		middleware.LoggerFromContext(c).Error("load settings failed", slog.Any("error", err))
		Internal(c, "failed to load settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}
