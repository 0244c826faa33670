package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roles granted to CMS accounts.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// OrderStatusPending is the only status an order ever carries; orders are immutable.
const OrderStatusPending = "pending"

// User is a CMS account.
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	Role               string `gorm:"size:16;default:editor"`
	MustChangePassword bool   `gorm:"default:false"`
}

// Article is a news/blog post.
type Article struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title" binding:"required,max=255"`
	Slug        string     `gorm:"uniqueIndex;size:255;not null" json:"slug" binding:"omitempty,max=255"`
	Excerpt     string     `gorm:"type:text" json:"excerpt"`
	Content     string     `gorm:"type:text" json:"content"`
	CoverImage  string     `gorm:"size:512" json:"cover_image" binding:"max=512"`
	Category    string     `gorm:"size:64;index" json:"category" binding:"max=64"`
	Author      string     `gorm:"size:128" json:"author" binding:"max=128"`
	Published   bool       `gorm:"default:false;index" json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	SortOrder   int        `gorm:"default:0" json:"sort_order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Service is a marketed product line (hosting, cloud, email, ...).
type Service struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:255;not null" json:"name" binding:"required,max=255"`
	Slug        string         `gorm:"uniqueIndex;size:255;not null" json:"slug" binding:"omitempty,max=255"`
	Category    string         `gorm:"size:32;index" json:"category" binding:"required,oneof=hosting cloud domain email server vmware other"`
	Summary     string         `gorm:"type:text" json:"summary"`
	Description string         `gorm:"type:text" json:"description"`
	Icon        string         `gorm:"size:128" json:"icon" binding:"max=128"`
	Features    datatypes.JSON `gorm:"type:jsonb" json:"features"`
	PriceFrom   int64          `gorm:"default:0" json:"price_from" binding:"gte=0"`
	Active      bool           `gorm:"index" json:"active"`
	SortOrder   int            `gorm:"default:0" json:"sort_order"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Testimonial is a customer quote shown on marketing pages.
type Testimonial struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Author    string    `gorm:"size:128;not null" json:"author" binding:"required,max=128"`
	Company   string    `gorm:"size:255" json:"company" binding:"max=255"`
	Position  string    `gorm:"size:128" json:"position" binding:"max=128"`
	Quote     string    `gorm:"type:text;not null" json:"quote" binding:"required"`
	Avatar    string    `gorm:"size:512" json:"avatar" binding:"max=512"`
	Rating    int       `gorm:"default:5" json:"rating" binding:"gte=1,lte=5"`
	Active    bool      `gorm:"index" json:"active"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageContent is one editable section of a marketing page.
type PageContent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Page      string         `gorm:"size:64;not null;uniqueIndex:idx_page_section" json:"page" binding:"required,max=64"`
	Section   string         `gorm:"size:64;not null;uniqueIndex:idx_page_section" json:"section" binding:"required,max=64"`
	Title     string         `gorm:"size:255" json:"title" binding:"max=255"`
	Subtitle  string         `gorm:"size:255" json:"subtitle" binding:"max=255"`
	Body      string         `gorm:"type:text" json:"body"`
	Image     string         `gorm:"size:512" json:"image" binding:"max=512"`
	Data      datatypes.JSON `gorm:"type:jsonb" json:"data"`
	Active    bool           `gorm:"index" json:"active"`
	SortOrder int            `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SiteSetting is an admin-configurable key/value pair.
type SiteSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:100;not null" json:"key" binding:"required,max=100"`
	Value     string    `gorm:"type:text" json:"value"`
	Group     string    `gorm:"size:64;index" json:"group" binding:"max=64"`
	Public    bool      `gorm:"not null" json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Menu is a navigation menu bound to a layout location (header, footer, ...).
type Menu struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:128;not null" json:"name" binding:"required,max=128"`
	Location  string     `gorm:"uniqueIndex;size:64;not null" json:"location" binding:"required,max=64"`
	Active    bool       `gorm:"not null" json:"active"`
	Items     []MenuItem `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MenuItem is one entry of a menu; ParentID builds nested dropdowns.
type MenuItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MenuID    uint      `gorm:"index;not null" json:"menu_id" binding:"required"`
	ParentID  *uint     `gorm:"index" json:"parent_id"`
	Label     string    `gorm:"size:128;not null" json:"label" binding:"required,max=128"`
	URL       string    `gorm:"size:512;not null" json:"url" binding:"required,max=512"`
	NewTab    bool      `gorm:"default:false" json:"new_tab"`
	Active    bool      `gorm:"not null" json:"active"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Media is an uploaded file stored in object storage.
type Media struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FileName    string    `gorm:"size:255" json:"file_name"`
	ObjectKey   string    `gorm:"uniqueIndex;size:512;not null" json:"object_key"`
	ContentType string    `gorm:"size:128" json:"content_type"`
	Size        int64     `json:"size"`
	Title       string    `gorm:"size:255" json:"title" binding:"max=255"`
	Alt         string    `gorm:"size:255" json:"alt" binding:"max=255"`
	UploadedBy  uint      `gorm:"index" json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Equipment is a server hardware product sold through checkout.
type Equipment struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:255;not null" json:"name" binding:"required,max=255"`
	SKU         string         `gorm:"uniqueIndex;size:64;not null" json:"sku" binding:"required,max=64"`
	Category    string         `gorm:"size:64;index" json:"category" binding:"max=64"`
	Description string         `gorm:"type:text" json:"description"`
	Specs       datatypes.JSON `gorm:"type:jsonb" json:"specs"`
	Price       int64          `gorm:"not null" json:"price" binding:"required,gt=0"`
	Stock       int            `gorm:"default:0" json:"stock" binding:"gte=0"`
	ImageURL    string         `gorm:"size:512" json:"image_url" binding:"max=512"`
	Active      bool           `gorm:"index" json:"active"`
	SortOrder   int            `gorm:"default:0" json:"sort_order"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Order is created once at checkout and never modified afterwards.
type Order struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	Reference     string      `gorm:"uniqueIndex;size:16;not null" json:"reference"`
	CustomerName  string      `gorm:"size:128;not null" json:"customer_name"`
	CustomerEmail string      `gorm:"size:255;not null" json:"customer_email"`
	CustomerPhone string      `gorm:"size:32;not null" json:"customer_phone"`
	CompanyName   string      `gorm:"size:255" json:"company_name"`
	TaxCode       string      `gorm:"size:32" json:"tax_code"`
	Address       string      `gorm:"type:text;not null" json:"address"`
	City          string      `gorm:"size:128" json:"city"`
	Notes         string      `gorm:"type:text" json:"notes"`
	PaymentMethod string      `gorm:"size:32;not null" json:"payment_method"`
	Subtotal      int64       `gorm:"not null" json:"subtotal"`
	VATPercent    float64     `gorm:"not null" json:"vat_percent"`
	VAT           int64       `gorm:"not null" json:"vat"`
	Total         int64       `gorm:"not null" json:"total"`
	Status        string      `gorm:"size:16;not null;default:pending" json:"status"`
	Items         []OrderItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderItem snapshots the equipment name and unit price at order time.
type OrderItem struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderID     uint   `gorm:"index;not null" json:"-"`
	EquipmentID uint   `gorm:"index;not null" json:"equipment_id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	SKU         string `gorm:"size:64" json:"sku"`
	UnitPrice   int64  `gorm:"not null" json:"unit_price"`
	Quantity    int    `gorm:"not null" json:"quantity"`
	LineTotal   int64  `gorm:"not null" json:"line_total"`
}

// OrderInvoice records the generated invoice PDF for an order.
type OrderInvoice struct {
	ID        uint      `gorm:"primaryKey"`
	OrderID   uint      `gorm:"uniqueIndex;not null"`
	ObjectKey string    `gorm:"size:512;not null"`
	CreatedAt time.Time
}

// AllModels lists every table managed by AutoMigrate.
func AllModels() []any {
	return []any{
		&User{},
		&Article{},
		&Service{},
		&Testimonial{},
		&PageContent{},
		&SiteSetting{},
		&Menu{},
		&MenuItem{},
		&Media{},
		&Equipment{},
		&Order{},
		&OrderItem{},
		&OrderInvoice{},
	}
}
