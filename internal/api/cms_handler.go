package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"infrasite/internal/api/middleware"
)

const defaultResourceOrder = "sort_order ASC, id ASC"

var errInvalidID = errors.New("invalid id")

// resourceConfig describes one CMS table. Only Name is required.
type resourceConfig[T any] struct {
	// Name is the URL segment and cache namespace, e.g. "articles".
	Name string
	// Order applies to admin lists; defaults to sort_order then id.
	Order string
	// Defaults runs on a zero record before the create body is bound.
	Defaults func(*T)
	// Prepare runs after binding and before every write.
	Prepare func(*T)
	// Check returns field errors that need the database (foreign keys).
	Check func(ctx context.Context, db *gorm.DB, rec *T) map[string]string
	// PublicScope filters the public list; nil disables PublicList.
	PublicScope func(*gorm.DB) *gorm.DB
	PublicOrder string
	// CacheKeys lists the public cache keys a record appears under.
	CacheKeys func(ctx context.Context, db *gorm.DB, rec *T) []string
	// BeforeDelete runs inside the delete transaction.
	BeforeDelete func(tx *gorm.DB, rec *T) error
}

// ResourceHandler serves list/get/create/patch/delete for one CMS table and
// the cached public list derived from it.
type ResourceHandler[T any] struct {
	db    *gorm.DB
	cache *publicCache
	cfg   resourceConfig[T]
}

func newResourceHandler[T any](db *gorm.DB, cache *publicCache, cfg resourceConfig[T]) *ResourceHandler[T] {
	if cfg.Order == "" {
		cfg.Order = defaultResourceOrder
	}
	if cfg.PublicOrder == "" {
		cfg.PublicOrder = cfg.Order
	}
	return &ResourceHandler[T]{db: db, cache: cache, cfg: cfg}
}

// Register mounts the admin routes on group.
func (h *ResourceHandler[T]) Register(group *gin.RouterGroup, mutators ...gin.HandlerFunc) {
	chain := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(slices.Clone(mutators), handler)
	}
	g := group.Group("/" + h.cfg.Name)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("", chain(h.Create)...)
	g.PATCH("/:id", chain(h.Update)...)
	g.DELETE("/:id", chain(h.Delete)...)
}

// List returns every record.
func (h *ResourceHandler[T]) List(c *gin.Context) {
	items := make([]T, 0)
	if err := h.db.WithContext(c.Request.Context()).Order(h.cfg.Order).Find(&items).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list records failed", slog.String("resource", h.cfg.Name), slog.Any("error", err))
		Internal(c, "failed to list "+h.cfg.Name)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Get returns one record by id.
func (h *ResourceHandler[T]) Get(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Create binds, validates and inserts a record.
func (h *ResourceHandler[T]) Create(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("resource", h.cfg.Name))

	var rec T
	if h.cfg.Defaults != nil {
		h.cfg.Defaults(&rec)
	}
	if err := c.ShouldBindJSON(&rec); err != nil {
		respondBindError(c, err, &rec)
		return
	}
	zeroFields(&rec, "ID", "CreatedAt", "UpdatedAt")
	if !h.prepareAndCheck(c, &rec) {
		return
	}

	if err := h.db.WithContext(ctx).Omit(clause.Associations).Create(&rec).Error; err != nil {
		h.respondWriteError(c, log, "create", err)
		return
	}
	h.invalidate(ctx, &rec)

	log.Info("record created", slog.Uint64("id", recordID(&rec)))
	c.JSON(http.StatusCreated, rec)
}

// Update overlays the JSON body onto the stored record and re-validates the
// result, so a PATCH only needs the fields that change.
func (h *ResourceHandler[T]) Update(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("resource", h.cfg.Name))

	rec, ok := h.load(c)
	if !ok {
		return
	}
	before := h.cacheKeys(ctx, rec)
	original := *rec

	body, err := c.GetRawData()
	if err != nil {
		BadRequest(c, "failed to read body")
		return
	}
	if err := json.Unmarshal(body, rec); err != nil {
		BadRequest(c, "invalid json body")
		return
	}
	copyFields(rec, &original, "ID", "CreatedAt")

	if err := binding.Validator.ValidateStruct(rec); err != nil {
		respondBindError(c, err, rec)
		return
	}
	if !h.prepareAndCheck(c, rec) {
		return
	}

	if err := h.db.WithContext(ctx).Omit(clause.Associations).Save(rec).Error; err != nil {
		h.respondWriteError(c, log, "update", err)
		return
	}
	h.cache.invalidate(ctx, append(before, h.cacheKeys(ctx, rec)...)...)

	log.Info("record updated", slog.Uint64("id", recordID(rec)))
	c.JSON(http.StatusOK, rec)
}

// Delete removes a record permanently.
func (h *ResourceHandler[T]) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("resource", h.cfg.Name))

	rec, ok := h.load(c)
	if !ok {
		return
	}
	keys := h.cacheKeys(ctx, rec)
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if h.cfg.BeforeDelete != nil {
			if err := h.cfg.BeforeDelete(tx, rec); err != nil {
				return err
			}
		}
		return tx.Delete(rec).Error
	})
	if err != nil {
		log.Error("delete record failed", slog.Any("error", err))
		Internal(c, "failed to delete record")
		return
	}
	h.cache.invalidate(ctx, keys...)

	log.Info("record deleted", slog.Uint64("id", recordID(rec)))
	c.Status(http.StatusNoContent)
}

// PublicList serves the visible records through the read cache.
func (h *ResourceHandler[T]) PublicList(c *gin.Context) {
	ctx := c.Request.Context()
	items := make([]T, 0)
	err := h.cache.load(ctx, publicCacheKey(h.cfg.Name, ""), &items, func() error {
		return h.cfg.PublicScope(h.db.WithContext(ctx)).Order(h.cfg.PublicOrder).Find(&items).Error
	})
	if err != nil {
		middleware.LoggerFromContext(c).Error("public list failed", slog.String("resource", h.cfg.Name), slog.Any("error", err))
		Internal(c, "failed to list "+h.cfg.Name)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *ResourceHandler[T]) load(c *gin.Context) (*T, bool) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid id")
		return nil, false
	}
	var rec T
	if err := h.db.WithContext(c.Request.Context()).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "record not found")
			return nil, false
		}
		middleware.LoggerFromContext(c).Error("load record failed", slog.String("resource", h.cfg.Name), slog.Any("error", err))
		Internal(c, "failed to load record")
		return nil, false
	}
	return &rec, true
}

func (h *ResourceHandler[T]) prepareAndCheck(c *gin.Context, rec *T) bool {
	if h.cfg.Prepare != nil {
		h.cfg.Prepare(rec)
	}
	if h.cfg.Check == nil {
		return true
	}
	if fields := h.cfg.Check(c.Request.Context(), h.db, rec); len(fields) > 0 {
		ValidationFailed(c, fields)
		return false
	}
	return true
}

func (h *ResourceHandler[T]) respondWriteError(c *gin.Context, log *slog.Logger, op string, err error) {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		Conflict(c, "a record with the same unique value already exists")
		return
	}
	log.Error(op+" record failed", slog.Any("error", err))
	Internal(c, "failed to "+op+" record")
}

func (h *ResourceHandler[T]) cacheKeys(ctx context.Context, rec *T) []string {
	keys := []string{publicCacheKey(h.cfg.Name, "")}
	if h.cfg.CacheKeys != nil {
		keys = append(keys, h.cfg.CacheKeys(ctx, h.db, rec)...)
	}
	return keys
}

func (h *ResourceHandler[T]) invalidate(ctx context.Context, rec *T) {
	h.cache.invalidate(ctx, h.cacheKeys(ctx, rec)...)
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return uint(id), nil
}

func respondBindError(c *gin.Context, err error, model any) {
	if fields := validationFields(err, model); len(fields) > 0 {
		ValidationFailed(c, fields)
		return
	}
	BadRequest(c, "invalid json body")
}

// validationFields maps validator errors to json field names.
func validationFields(err error, model any) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if sf, ok := t.FieldByName(fe.StructField()); ok {
			if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag != "" && tag != "-" {
				name = tag
			}
		}
		fields[name] = validationMessage(fe)
	}
	return fields
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func zeroFields(rec any, names ...string) {
	v := reflect.ValueOf(rec).Elem()
	for _, name := range names {
		if f := v.FieldByName(name); f.IsValid() && f.CanSet() {
			f.Set(reflect.Zero(f.Type()))
		}
	}
}

func copyFields(dst, src any, names ...string) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	for _, name := range names {
		if f := dv.FieldByName(name); f.IsValid() && f.CanSet() {
			f.Set(sv.FieldByName(name))
		}
	}
}

func recordID(rec any) uint64 {
	if f := reflect.ValueOf(rec).Elem().FieldByName("ID"); f.IsValid() && f.CanUint() {
		return f.Uint()
	}
	return 0
}
