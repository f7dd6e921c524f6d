package core

import (
	"regexp"
	"strconv"
	"strings"
)

// 默认数量与单位
const (
	DefaultQuantity = 1.0
	DefaultUnit     = "unidad"
)

var (
	// <数字><单位>, 单位按最长优先排列
	quantityUnitRe = regexp.MustCompile(
		`(\d+(?:[.,]\d+)?)\s*(kilos|kilo|kg|gramos|grs|gr|g|mililitros|mililitro|ml|mg|litros|litro|lts|lt|l|unidades|unidad|unds|und|un|u|cm|m|oz|cc)\b`)

	// pack x3 / paquete 6 / caja x 12 / x4
	packRe = regexp.MustCompile(`(?:(?:pack|paquete|caja)\s*x?|\bx)\s*(\d+)\b`)

	// 价格文本中的数字片段
	priceTokenRe = regexp.MustCompile(`\d[\d.,]*`)
)

// unitAliases 单位别名到规范单位
var unitAliases = map[string]string{
	"g": "g", "gr": "g", "grs": "g", "gramos": "g",
	"kg": "kg", "kilo": "kg", "kilos": "kg",
	"ml": "ml", "mililitro": "ml", "mililitros": "ml",
	"l": "l", "lt": "l", "lts": "l", "litro": "l", "litros": "l",
	"u": "unidad", "un": "unidad", "und": "unidad", "unds": "unidad", "unidad": "unidad", "unidades": "unidad",
	"pack": "pack", "paquete": "pack", "caja": "pack", "x": "pack",
}

// CanonicalUnit 返回规范单位, 未知单位原样小写返回
func CanonicalUnit(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if u, ok := unitAliases[t]; ok {
		return u
	}
	return t
}

// ParseQuantity 从商品名和单位参考文本中解析数量与单位
// 多个匹配时取位置最靠后的一个, 解析不到或数量为0时返回1 unidad
func ParseQuantity(name, unitRef string) (float64, string) {
	text := strings.ToLower(strings.TrimSpace(name + " " + unitRef))

	lastPos := -1
	quantity, unit := DefaultQuantity, DefaultUnit

	for _, m := range quantityUnitRe.FindAllStringSubmatchIndex(text, -1) {
		if m[0] <= lastPos {
			continue
		}
		q, err := parseDecimal(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		lastPos = m[0]
		quantity, unit = q, CanonicalUnit(text[m[4]:m[5]])
	}

	for _, m := range packRe.FindAllStringSubmatchIndex(text, -1) {
		if m[0] <= lastPos {
			continue
		}
		q, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		lastPos = m[0]
		quantity, unit = float64(q), "pack"
	}

	if quantity <= 0 {
		return DefaultQuantity, DefaultUnit
	}
	return quantity, unit
}

// parseDecimal 数量中的逗号视为小数点 (1,5kg)
func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}

// ParsePrice 扫描全部价格文本, 返回最小的正数金额
// 没有可解析的金额时ok为false
func ParsePrice(texts []string) (price float64, ok bool) {
	for _, text := range texts {
		for _, token := range priceTokenRe.FindAllString(text, -1) {
			v, err := parseAmount(token)
			if err != nil || v <= 0 {
				continue
			}
			if !ok || v < price {
				price, ok = v, true
			}
		}
	}
	return price, ok
}

// parseAmount 解析单个金额片段
//
// 同时出现 , 和 . 时最后出现的是小数点;
// 只有一种分隔符时, 出现多次或其后恰好3位数字视为千分位, 否则为小数点.
func parseAmount(token string) (float64, error) {
	token = strings.TrimRight(token, ".,")

	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		decimal, thousands := ".", ","
		if lastComma > lastDot {
			decimal, thousands = ",", "."
		}
		token = strings.ReplaceAll(token, thousands, "")
		token = strings.Replace(token, decimal, ".", 1)

	case lastComma >= 0 || lastDot >= 0:
		sep, idx := ".", lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(token, sep) > 1 || len(token)-idx-1 == 3 {
			token = strings.ReplaceAll(token, sep, "")
		} else {
			token = strings.Replace(token, sep, ".", 1)
		}
	}

	return strconv.ParseFloat(token, 64)
}
