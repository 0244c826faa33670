package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"infrasite/internal/database"
	"infrasite/internal/quote"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert starter content (services, equipment, menus, settings)",
	Long: `Insert starter content. Rows are matched on their unique key, so running
seed again never duplicates or overwrites edited records.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, db, err := openDatabase()
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		catalogs, err := quote.DefaultRegistry()
		if err != nil {
			return err
		}
		return seed(db, catalogs, cmd.OutOrStdout())
	},
}

type seedCounts struct {
	services, equipment, menuItems, settings int
}

func seed(db *gorm.DB, catalogs *quote.Registry, out io.Writer) error {
	var counts seedCounts
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if counts.services, err = seedServices(tx, catalogs); err != nil {
			return err
		}
		if counts.equipment, err = seedEquipment(tx); err != nil {
			return err
		}
		if counts.menuItems, err = seedMenus(tx); err != nil {
			return err
		}
		if counts.settings, err = seedSettings(tx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded services=%d equipment=%d menu_items=%d settings=%d\n",
		counts.services, counts.equipment, counts.menuItems, counts.settings)
	return nil
}

// firstOrCreate inserts rec unless a row matching where already exists.
func firstOrCreate[T any](tx *gorm.DB, rec *T, where T) (bool, error) {
	var existing []T
	if err := tx.Where(&where).Limit(1).Find(&existing).Error; err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	if err := tx.Create(rec).Error; err != nil {
		return false, err
	}
	return true, nil
}

func jsonList(values []string) datatypes.JSON {
	data, _ := json.Marshal(values)
	return datatypes.JSON(data)
}

func seedServices(tx *gorm.DB, catalogs *quote.Registry) (int, error) {
	created := 0
	for i, c := range catalogs.Catalogs() {
		if len(c.Packages) == 0 {
			continue
		}
		priceFrom := c.Packages[0].BasePrice
		names := make([]string, 0, len(c.Packages))
		for _, p := range c.Packages {
			priceFrom = min(priceFrom, p.BasePrice)
			names = append(names, p.Name)
		}
		svc := database.Service{
			Name:      c.Title,
			Slug:      c.Service,
			Category:  c.Service,
			Summary:   c.Title,
			Features:  jsonList(names),
			PriceFrom: priceFrom,
			Active:    true,
			SortOrder: i,
		}
		ok, err := firstOrCreate(tx, &svc, database.Service{Slug: c.Service})
		if err != nil {
			return created, fmt.Errorf("seed service %s: %w", c.Service, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func seedEquipment(tx *gorm.DB) (int, error) {
	items := []database.Equipment{
		{Name: "Dell PowerEdge R750", SKU: "DELL-R750", Category: "rack-server", Price: 185000000, Stock: 5,
			Specs: jsonList([]string{"2x Intel Xeon Silver 4314", "64GB DDR4 ECC", "2x 960GB SSD", "2U"})},
		{Name: "HPE ProLiant DL380 Gen10 Plus", SKU: "HPE-DL380-G10P", Category: "rack-server", Price: 172000000, Stock: 3,
			Specs: jsonList([]string{"2x Intel Xeon Gold 5318Y", "128GB DDR4 ECC", "4x 1.2TB SAS", "2U"})},
		{Name: "Lenovo ThinkSystem SR650 V2", SKU: "LNV-SR650-V2", Category: "rack-server", Price: 158000000, Stock: 4,
			Specs: jsonList([]string{"1x Intel Xeon Silver 4310", "32GB DDR4 ECC", "2x 480GB SSD", "2U"})},
		{Name: "Synology RackStation RS1221+", SKU: "SYN-RS1221P", Category: "storage", Price: 42000000, Stock: 8,
			Specs: jsonList([]string{"8 bays", "AMD Ryzen V1500B", "4GB DDR4 ECC", "2U"})},
	}
	created := 0
	for i := range items {
		items[i].Active = true
		items[i].SortOrder = i
		ok, err := firstOrCreate(tx, &items[i], database.Equipment{SKU: items[i].SKU})
		if err != nil {
			return created, fmt.Errorf("seed equipment %s: %w", items[i].SKU, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

type seedMenuItem struct {
	label, url string
	children   []seedMenuItem
}

func seedMenus(tx *gorm.DB) (int, error) {
	menus := []struct {
		name, location string
		items          []seedMenuItem
	}{
		{"Menu chính", "header", []seedMenuItem{
			{label: "Trang chủ", url: "/"},
			{label: "Dịch vụ", url: "/dich-vu", children: []seedMenuItem{
				{label: "Hosting", url: "/dich-vu/hosting"},
				{label: "Cloud Server", url: "/dich-vu/cloud"},
				{label: "Email doanh nghiệp", url: "/dich-vu/email"},
				{label: "Tên miền", url: "/dich-vu/domain"},
			}},
			{label: "Thiết bị", url: "/thiet-bi"},
			{label: "Tin tức", url: "/tin-tuc"},
			{label: "Liên hệ", url: "/lien-he"},
		}},
		{"Chân trang", "footer", []seedMenuItem{
			{label: "Giới thiệu", url: "/gioi-thieu"},
			{label: "Chính sách bảo mật", url: "/chinh-sach-bao-mat"},
		}},
	}

	created := 0
	for _, m := range menus {
		menu := database.Menu{Name: m.name, Location: m.location, Active: true}
		ok, err := firstOrCreate(tx, &menu, database.Menu{Location: m.location})
		if err != nil {
			return created, fmt.Errorf("seed menu %s: %w", m.location, err)
		}
		if !ok {
			continue
		}
		n, err := insertMenuItems(tx, menu.ID, nil, m.items)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func insertMenuItems(tx *gorm.DB, menuID uint, parentID *uint, items []seedMenuItem) (int, error) {
	created := 0
	for i, it := range items {
		row := database.MenuItem{MenuID: menuID, ParentID: parentID, Label: it.label, URL: it.url, Active: true, SortOrder: i}
		if err := tx.Create(&row).Error; err != nil {
			return created, fmt.Errorf("seed menu item %s: %w", it.label, err)
		}
		created++
		n, err := insertMenuItems(tx, menuID, &row.ID, it.children)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func seedSettings(tx *gorm.DB) (int, error) {
	settings := []database.SiteSetting{
		{Key: "company_name", Value: "InfraSite JSC", Group: "general", Public: true},
		{Key: "hotline", Value: "1900 6868", Group: "contact", Public: true},
		{Key: "support_email", Value: "support@infrasite.vn", Group: "contact", Public: true},
		{Key: "office_address", Value: "Tầng 8, 123 Nguyễn Văn Linh, Quận 7, TP.HCM", Group: "contact", Public: true},
		{Key: "order_notification_email", Value: "sales@infrasite.vn", Group: "checkout", Public: false},
	}
	created := 0
	for i := range settings {
		ok, err := firstOrCreate(tx, &settings[i], database.SiteSetting{Key: settings[i].Key})
		if err != nil {
			return created, fmt.Errorf("seed setting %s: %w", settings[i].Key, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}
