package core

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

// CardExtractor 按站点选择器抽取商品卡片
type CardExtractor struct {
	sel models.Selectors
}

// NewCardExtractor 创建卡片抽取器
func NewCardExtractor(sel models.Selectors) *CardExtractor {
	return &CardExtractor{sel: sel}
}

// ParseDocument 解析渲染后的HTML
func ParseDocument(rawHTML string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// Extract 抽取全部卡片的原始字段, 保持DOM顺序
// 缺少名称或价格节点的卡片直接跳过
func (e *CardExtractor) Extract(rawHTML string) ([]models.RawProductFields, error) {
	doc, err := ParseDocument(rawHTML)
	if err != nil {
		return nil, err
	}
	return e.ExtractDocument(doc), nil
}

// ExtractDocument 在已解析的文档上抽取
func (e *CardExtractor) ExtractDocument(doc *goquery.Document) []models.RawProductFields {
	var items []models.RawProductFields

	doc.Find(e.sel.Card).Each(func(_ int, card *goquery.Selection) {
		name := cleanText(card.Find(e.sel.Name).First().Text())
		if name == "" {
			return
		}

		if e.sel.Presentation != "" {
			if pres := cleanText(card.Find(e.sel.Presentation).First().Text()); pres != "" {
				name = name + " - " + pres
			}
		}

		var prices []string
		card.Find(e.sel.Price).Each(func(_ int, p *goquery.Selection) {
			if text := cleanText(p.Text()); text != "" {
				prices = append(prices, text)
			}
		})
		if len(prices) == 0 {
			return
		}

		var unitRef string
		if e.sel.UnitRef != "" {
			unitRef = cleanText(card.Find(e.sel.UnitRef).First().Text())
		}

		items = append(items, models.RawProductFields{
			NameText:    name,
			PriceTexts:  prices,
			UnitRefText: unitRef,
		})
	})

	return items
}

// CountCards 卡片元素数量(包括被跳过的卡片)
func (e *CardExtractor) CountCards(doc *goquery.Document) int {
	return doc.Find(e.sel.Card).Length()
}

// CardSignature 首张卡片的名称, 用于判断翻页是否生效
func (e *CardExtractor) CardSignature(doc *goquery.Document) string {
	first := doc.Find(e.sel.Card).First()
	if first.Length() == 0 {
		return ""
	}
	sig := cleanText(first.Find(e.sel.Name).First().Text())
	if sig == "" {
		sig = cleanText(first.Text())
	}
	return sig
}

// cleanText 折叠空白, strings.Fields同时处理&nbsp;
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
