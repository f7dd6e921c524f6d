package models

import (
	"encoding/json"
	"time"
)

// RawProductFields 商品卡片上的原始文本
// 每次页面渲染产生, 交给归一化器后即丢弃
type RawProductFields struct {
	NameText string `json:"name_text"`

	// PriceTexts 卡片上的全部价格节点(原价+促销价等), 按DOM顺序
	PriceTexts []string `json:"price_texts"`

	UnitRefText string `json:"unit_ref_text"`
}

// ProductRecord 归一化后的商品记录
type ProductRecord struct {
	Name        string    `json:"name" bson:"name"`
	Price       float64   `json:"price" bson:"price"`
	UnitPrice   float64   `json:"unit_price" bson:"unit_price"`
	Quantity    float64   `json:"quantity" bson:"total_unit_quantity"`
	UnitType    string    `json:"unit_type" bson:"unit_type"`
	Category    string    `json:"category" bson:"category"`
	SubCategory string    `json:"sub_category" bson:"sub_category"`
	LabelPath   []string  `json:"label_path" bson:"label_path"`
	SourceID    string    `json:"source_id" bson:"comercial_id"`
	SourceName  string    `json:"source_name" bson:"comercial_name"`
	ListingURL  string    `json:"listing_url" bson:"listing_url"`
	RunID       string    `json:"run_id" bson:"run_id"`
	CapturedAt  time.Time `json:"captured_at" bson:"captured_at"`
}

// ResultDate 抓取日期 (YYYY-MM-DD)
func (r ProductRecord) ResultDate() string {
	return r.CapturedAt.Format("2006-01-02")
}

// ResultTime 抓取时间 (HH:MM:SS)
func (r ProductRecord) ResultTime() string {
	return r.CapturedAt.Format("15:04:05")
}

// ToJSON 序列化为单行JSON
func (r ProductRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
