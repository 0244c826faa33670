package worker

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"infrasite/internal/config"
	"infrasite/internal/database"
)

var vndPrinter = message.NewPrinter(language.Vietnamese)

// formatVND renders 11000000 as "11.000.000 ₫".
func formatVND(amount int64) string {
	return vndPrinter.Sprintf("%d", amount) + " ₫"
}

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"vnd":  formatVND,
	"date": func(t time.Time) string { return t.In(vietnamTZ).Format("02/01/2006 15:04") },
	"inc":  func(i int) int { return i + 1 },
}).Parse(invoiceHTML))

var vietnamTZ = time.FixedZone("ICT", 7*60*60)

type invoiceView struct {
	Order  *database.Order
	Seller config.CheckoutConfig
}

func renderInvoiceHTML(order *database.Order, seller config.CheckoutConfig) (string, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, invoiceView{Order: order, Seller: seller}); err != nil {
		return "", fmt.Errorf("execute invoice template: %w", err)
	}
	return buf.String(), nil
}

const invoiceHTML = `<!DOCTYPE html>
<html lang="vi">
<head>
<meta charset="UTF-8">
<title>Hóa đơn {{.Order.Reference}}</title>
<style>
  @page { size: A4; margin: 16mm; }
  body { font-family: "Noto Sans", Arial, sans-serif; font-size: 10.5pt; color: #1f2937; margin: 0; }
  header { display: flex; justify-content: space-between; border-bottom: 2px solid #0f4c81; padding-bottom: 8px; }
  h1 { font-size: 18pt; color: #0f4c81; margin: 0; }
  .muted { color: #6b7280; }
  table { width: 100%; border-collapse: collapse; margin-top: 16px; }
  th, td { padding: 6px 8px; border-bottom: 1px solid #e5e7eb; text-align: left; }
  th { background: #f3f4f6; }
  td.num, th.num { text-align: right; }
  .totals { width: 45%; margin-left: auto; }
  .totals td { border: 0; }
  .grand td { font-weight: bold; font-size: 12pt; border-top: 2px solid #0f4c81; }
  .bank { margin-top: 24px; padding: 12px; border: 1px dashed #0f4c81; background: #f8fafc; }
</style>
</head>
<body>
<header>
  <div>
    <h1>{{.Seller.SellerName}}</h1>
    {{with .Seller.SellerAddress}}<div class="muted">{{.}}</div>{{end}}
    {{with .Seller.SellerTaxCode}}<div class="muted">MST: {{.}}</div>{{end}}
  </div>
  <div style="text-align:right">
    <div><strong>ĐƠN HÀNG {{.Order.Reference}}</strong></div>
    <div class="muted">{{date .Order.CreatedAt}}</div>
  </div>
</header>

<section style="margin-top:16px">
  <div><strong>Khách hàng:</strong> {{.Order.CustomerName}}</div>
  {{with .Order.CompanyName}}<div><strong>Công ty:</strong> {{.}}</div>{{end}}
  {{with .Order.TaxCode}}<div><strong>MST:</strong> {{.}}</div>{{end}}
  <div><strong>Email:</strong> {{.Order.CustomerEmail}} &middot; <strong>Điện thoại:</strong> {{.Order.CustomerPhone}}</div>
  <div><strong>Địa chỉ:</strong> {{.Order.Address}}{{with .Order.City}}, {{.}}{{end}}</div>
</section>

<table>
  <thead>
    <tr><th>#</th><th>Sản phẩm</th><th>SKU</th><th class="num">Đơn giá</th><th class="num">SL</th><th class="num">Thành tiền</th></tr>
  </thead>
  <tbody>
  {{range $i, $item := .Order.Items}}
    <tr>
      <td>{{inc $i}}</td>
      <td>{{$item.Name}}</td>
      <td>{{$item.SKU}}</td>
      <td class="num">{{vnd $item.UnitPrice}}</td>
      <td class="num">{{$item.Quantity}}</td>
      <td class="num">{{vnd $item.LineTotal}}</td>
    </tr>
  {{end}}
  </tbody>
</table>

<table class="totals">
  <tr><td>Tạm tính</td><td class="num">{{vnd .Order.Subtotal}}</td></tr>
  <tr><td>VAT ({{.Order.VATPercent}}%)</td><td class="num">{{vnd .Order.VAT}}</td></tr>
  <tr class="grand"><td>Tổng cộng</td><td class="num">{{vnd .Order.Total}}</td></tr>
</table>

{{if eq .Order.PaymentMethod "bank_transfer"}}
<div class="bank">
  <div><strong>Thông tin chuyển khoản</strong></div>
  <div>Ngân hàng: {{.Seller.BankName}}{{with .Seller.BankBranch}} - {{.}}{{end}}</div>
  <div>Số tài khoản: {{.Seller.BankAccountNumber}}</div>
  <div>Chủ tài khoản: {{.Seller.BankAccountHolder}}</div>
  <div>Số tiền: {{vnd .Order.Total}}</div>
  <div>Nội dung: <strong>{{.Order.Reference}}</strong></div>
</div>
{{else}}
<div class="bank">Thanh toán khi nhận hàng (COD): {{vnd .Order.Total}}</div>
{{end}}
{{with .Order.Notes}}<p class="muted">Ghi chú: {{.}}</p>{{end}}
</body>
</html>
`
