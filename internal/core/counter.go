package core

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

var countTokenRe = regexp.MustCompile(`\d[\d.,]*`)

// EstimateCount 读取结果数量标签
// 元素缺失、超时或没有数字时返回UnknownCount, 从不返回错误
func EstimateCount(ctx context.Context, page models.Page, selector string, timeout time.Duration) models.Count {
	if selector == "" {
		return models.UnknownCount
	}

	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := page.Text(readCtx, selector)
	if err != nil {
		utils.Debugf("读取计数标签失败 [%s]: %v", page.URL(), err)
		return models.UnknownCount
	}

	return ParseCount(text)
}

// ParseCount 提取文本中的第一个整数, 去掉千分位
func ParseCount(text string) models.Count {
	token := countTokenRe.FindString(text)
	if token == "" {
		return models.UnknownCount
	}
	token = strings.NewReplacer(",", "", ".", "").Replace(token)
	n, err := strconv.Atoi(token)
	if err != nil {
		return models.UnknownCount
	}
	return models.KnownCount(n)
}
