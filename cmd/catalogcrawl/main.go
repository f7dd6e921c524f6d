package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/catalogcrawl/internal/config"
	"github.com/RecoveryAshes/catalogcrawl/internal/core"
	"github.com/RecoveryAshes/catalogcrawl/internal/sinks"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 全局参数
var (
	configFile string
	verbose    bool
	logLevel   string

	// appConfig 在PersistentPreRunE中加载
	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "catalogcrawl",
	Short: "零售商品目录爬取工具",
	Long: `catalogcrawl - 零售网站商品目录爬取工具

按站点适配器遍历分类树, 商品数超过阈值的分类继续展开子类目,
否则逐页抽取商品卡片, 规范化价格和单位后写入JSONL/PostgreSQL/MongoDB。

示例:
  # 爬取内置站点的全部类目
  catalogcrawl run --site plazavea

  # 只爬取指定类目, 写入数据库
  catalogcrawl run --site plazavea --category abarrotes --sink jsonl,postgres

  # 自定义入口
  catalogcrawl run --site inkafarma -u https://inkafarma.pe/categoria/salud

  # 从断点继续
  catalogcrawl run --site tottus --resume

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := cfg.LogConfig()
		switch {
		case logLevel != "":
			logConfig.Level = logLevel
		case verbose:
			logConfig.Level = "debug"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = cfg
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("catalogcrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "列出可用的站点适配器",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("sites")
		if file == "" {
			file = appConfig.SitesFile
		}

		catalog, err := config.LoadSites(file)
		if err != nil {
			return err
		}

		fmt.Println("\n==================================================")
		fmt.Println("🏪 可用站点")
		fmt.Println("==================================================")
		for _, name := range catalog.Names() {
			site, _ := catalog.Get(name)
			fmt.Printf("%-12s %-8s %-7s 类目: %-3d 固定入口: %-3d %s\n",
				site.Name, site.Fetcher, site.Strategy,
				len(site.Categories), len(site.StartURLs), site.BaseURL)

			if verbose && len(site.Categories) > 0 {
				names := make([]string, 0, len(site.Categories))
				for cat := range site.Categories {
					names = append(names, cat)
				}
				sort.Strings(names)
				fmt.Printf("             %s\n", strings.Join(names, ", "))
			}
		}
		fmt.Println("==================================================")
		return nil
	},
}

var setupDBCmd = &cobra.Command{
	Use:   "setup-db",
	Short: "创建PostgreSQL schema和商品表",
	RunE: func(cmd *cobra.Command, args []string) error {
		pg := appConfig.Sink.Postgres
		if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
			pg.DSN = dsn
		}
		if schema, _ := cmd.Flags().GetString("schema"); schema != "" {
			pg.Schema = schema
		}
		if table, _ := cmd.Flags().GetString("table"); table != "" {
			pg.Table = table
		}
		if pg.DSN == "" {
			return fmt.Errorf("未配置数据库连接: 设置DATABASE_URL或使用 --dsn")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sinks.SetupSchema(ctx, pg.DSN, pg.Schema, pg.Table); err != nil {
			return err
		}
		utils.Infof("✅ 已创建 %s.%s", pg.Schema, pg.Table)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	sitesCmd.Flags().String("sites", "", "额外的站点适配器文件")

	setupDBCmd.Flags().String("dsn", "", "PostgreSQL连接串 (默认读取DATABASE_URL)")
	setupDBCmd.Flags().String("schema", "", "schema名称")
	setupDBCmd.Flags().String("table", "", "表名")

	registerRunFlags(runCmd)

	rootCmd.AddCommand(runCmd, sitesCmd, setupDBCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
