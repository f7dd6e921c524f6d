package core

import (
	"math"
	"time"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

// Normalizer 把卡片原始文本转换为商品记录
// 除CapturedAt外结果完全由输入决定
type Normalizer struct {
	sourceID   string
	sourceName string
	runID      string
	now        func() time.Time
}

// NewNormalizer 创建归一化器, now为nil时使用time.Now
func NewNormalizer(site models.SiteAdapter, runID string, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		sourceID:   site.SourceID,
		sourceName: site.SourceName,
		runID:      runID,
		now:        now,
	}
}

// Normalize 归一化一条原始记录
// 名称为空返回no_name拒绝, 没有可解析的价格返回no_price拒绝
func (n *Normalizer) Normalize(raw models.RawProductFields, node models.ListingNode) (models.ProductRecord, error) {
	name := cleanText(raw.NameText)
	if name == "" {
		return models.ProductRecord{}, models.Reject(models.RejectNoName, "")
	}

	price, ok := ParsePrice(raw.PriceTexts)
	if !ok {
		return models.ProductRecord{}, models.Reject(models.RejectNoPrice, name)
	}

	quantity, unit := ParseQuantity(name, raw.UnitRefText)

	return models.ProductRecord{
		Name:        name,
		Price:       price,
		UnitPrice:   roundTo(price/quantity, 4),
		Quantity:    quantity,
		UnitType:    unit,
		Category:    node.Category(),
		SubCategory: node.SubCategory(),
		LabelPath:   append([]string(nil), node.LabelPath...),
		SourceID:    n.sourceID,
		SourceName:  n.sourceName,
		ListingURL:  node.URL,
		RunID:       n.runID,
		CapturedAt:  n.now(),
	}, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
