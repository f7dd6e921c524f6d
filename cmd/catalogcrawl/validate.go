package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/catalogcrawl/internal/core"
	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// ValidateFlags 验证run命令的参数
// 零值表示未指定, 由配置文件决定
func ValidateFlags(
	site string,
	urls string,
	urlFile string,
	threshold int,
	maxPages int,
	concurrency int,
	sinkKinds []string,
) error {
	if strings.TrimSpace(site) == "" {
		return fmt.Errorf("必须使用 --site 指定站点 (catalogcrawl sites 查看可用站点)")
	}

	for _, raw := range utils.SplitList(urls) {
		normalized, err := NormalizeURL(raw)
		if err != nil {
			return fmt.Errorf("无效的入口URL: %w", err)
		}
		if err := models.ValidateURL(normalized); err != nil {
			return fmt.Errorf("无效的入口URL: %w", err)
		}
	}

	if urlFile != "" && strings.TrimSpace(urlFile) == "" {
		return fmt.Errorf("URL文件路径不能为空")
	}

	if threshold < 0 {
		return fmt.Errorf("阈值不能为负数, 当前值: %d", threshold)
	}

	if maxPages < 0 || maxPages > 10000 {
		return fmt.Errorf("最大翻页数必须在1-10000之间, 当前值: %d", maxPages)
	}

	if concurrency < 0 || concurrency > 32 {
		return fmt.Errorf("并发数必须在1-32之间, 当前值: %d", concurrency)
	}

	validSinks := map[string]bool{
		core.SinkJSONL:    true,
		core.SinkPostgres: true,
		core.SinkMongo:    true,
	}
	for _, kind := range sinkKinds {
		if !validSinks[kind] {
			return fmt.Errorf("无效的写入端: %s (有效值: jsonl, postgres, mongo)", kind)
		}
	}

	return nil
}

// NormalizeURL 规范化URL, 没有协议时默认https
func NormalizeURL(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		urlStr = "https://" + urlStr
		parsed, err = url.Parse(urlStr)
		if err != nil {
			return "", err
		}
	}

	return parsed.String(), nil
}
