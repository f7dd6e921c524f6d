package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitLogger(t *testing.T) {
	tempDir := t.TempDir()

	config := LogConfig{
		Level:      "debug",
		LogDir:     tempDir,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		NoColor:    true,
	}

	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("测试信息日志")
	Warn("测试警告日志")
	Debug("测试调试日志")

	time.Sleep(100 * time.Millisecond)

	mainLogPath := filepath.Join(tempDir, MainLogFile)
	if _, err := os.Stat(mainLogPath); os.IsNotExist(err) {
		t.Errorf("主日志文件未创建: %s", mainLogPath)
	}
}

func TestLogLevels(t *testing.T) {
	tempDir := t.TempDir()

	config := LogConfig{
		Level:    "info",
		LogDir:   tempDir,
		MaxSize:  10,
		NoColor:  true,
		Compress: false,
	}

	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("信息日志测试")
	Infof("格式化信息日志: %s", "测试")
	Warnf("格式化警告日志: %d", 123)
	Debugf("调试日志不应出现: %v", true)

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(filepath.Join(tempDir, MainLogFile))
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(content), "信息日志测试") {
		t.Error("主日志缺少info级别日志")
	}
	if strings.Contains(string(content), "调试日志不应出现") {
		t.Error("info级别下不应写入debug日志")
	}
}

func TestErrorLogOnlyErrors(t *testing.T) {
	tempDir := t.TempDir()

	if err := InitLogger(LogConfig{Level: "info", LogDir: tempDir, MaxSize: 10, NoColor: true}); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Warn("警告不进错误日志")
	Error(errors.New("sink down"), "写入失败")

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(filepath.Join(tempDir, ErrorLogFile))
	if err != nil {
		t.Fatalf("读取错误日志失败: %v", err)
	}
	if strings.Contains(string(content), "警告不进错误日志") {
		t.Error("错误日志中出现了warn级别日志")
	}
	if !strings.Contains(string(content), "写入失败") {
		t.Error("错误日志缺少error级别日志")
	}
}

func TestWithRun(t *testing.T) {
	tempDir := t.TempDir()
	if err := InitLogger(LogConfig{Level: "info", LogDir: tempDir, MaxSize: 10, NoColor: true}); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	l := WithRun("inkafarma", "run-7")
	l.Info().Msg("列表完成")
	l2 := WithRun("tottus", "")
	l2.Info().Msg("没有运行ID")

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(filepath.Join(tempDir, MainLogFile))
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	logs := string(content)
	if !strings.Contains(logs, `"site":"inkafarma"`) || !strings.Contains(logs, `"run_id":"run-7"`) {
		t.Errorf("日志缺少站点或运行ID字段: %s", logs)
	}
	if strings.Contains(logs, `"run_id":""`) {
		t.Error("空运行ID不应写入字段")
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != "info" {
		t.Errorf("默认日志级别错误: 期望 'info', 得到 '%s'", config.Level)
	}
	if config.LogDir != "logs" {
		t.Errorf("默认日志目录错误: 期望 'logs', 得到 '%s'", config.LogDir)
	}
	if config.MaxSize != 10 || config.MaxBackups != 3 || config.MaxAge != 28 {
		t.Errorf("默认轮转参数错误: %+v", config)
	}
	if !config.Compress {
		t.Error("默认应该启用压缩")
	}
}

func TestWithSite(t *testing.T) {
	tempDir := t.TempDir()
	if err := InitLogger(LogConfig{Level: "info", LogDir: tempDir, MaxSize: 10, NoColor: true}); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	l := WithSite("inkafarma")
	l.Info().Msg("站点日志")

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(filepath.Join(tempDir, MainLogFile))
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(content), `"site":"inkafarma"`) {
		t.Errorf("日志缺少site字段: %s", content)
	}
}
