package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

// Seed 一个遍历入口: URL及可选的类目路径
type Seed struct {
	URL    string
	Labels []string
}

// ParseSeedLine 解析一行入口
// 格式: <url> 或 <url> | 类目 > 子类目
func ParseSeedLine(line string) (Seed, error) {
	rawURL, labelPart, _ := strings.Cut(line, "|")
	rawURL = strings.TrimSpace(rawURL)

	if err := models.ValidateURL(rawURL); err != nil {
		return Seed{}, err
	}

	seed := Seed{URL: rawURL}
	for _, label := range strings.Split(labelPart, ">") {
		if label = strings.TrimSpace(label); label != "" {
			seed.Labels = append(seed.Labels, label)
		}
	}
	return seed, nil
}

// ReadSeedsFromFile 从文件中读取入口列表
func ReadSeedsFromFile(filepath string) ([]Seed, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开URL文件失败: %w", err)
	}
	defer file.Close()

	seeds := make([]Seed, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		seed, err := ParseSeedLine(line)
		if err != nil {
			Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
			continue
		}

		seeds = append(seeds, seed)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}

	if len(seeds) == 0 {
		return nil, fmt.Errorf("URL文件中没有有效的URL")
	}

	Infof("从文件加载了 %d 个入口", len(seeds))
	return seeds, nil
}

// SplitList 拆分逗号分隔的参数, 去掉空白和空项
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
