package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/catalogcrawl/internal/config"
	"github.com/RecoveryAshes/catalogcrawl/internal/core"
	"github.com/RecoveryAshes/catalogcrawl/internal/crawlers"
	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/observability"
	"github.com/RecoveryAshes/catalogcrawl/internal/sinks"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// run命令参数
var (
	siteName      string
	targetURLs    string
	urlFile       string
	categories    []string
	threshold     int
	maxPages      int
	concurrency   int
	delay         time.Duration
	resume        bool
	headless      bool
	respectRobots bool
	sinkKinds     []string
	outputDir     string
	metricsAddr   string
	sitesFile     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "遍历站点分类树并抽取商品",
	RunE:  runCrawl,
}

func registerRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&siteName, "site", "s", "", "站点适配器名称 (必需)")
	f.StringVarP(&targetURLs, "url", "u", "", "自定义入口URL, 逗号分隔")
	f.StringVarP(&urlFile, "url-file", "f", "", "入口URL文件, 每行 <url> 或 <url> | 类目 > 子类目")
	f.StringSliceVar(&categories, "category", nil, "只爬取这些类目, 可多次指定")
	f.IntVar(&threshold, "threshold", 0, "展开子类目的商品数阈值 (覆盖站点配置)")
	f.IntVar(&maxPages, "max-pages", 0, "每个叶子分类最多翻页数")
	f.IntVarP(&concurrency, "concurrency", "j", 0, "并发遍历的入口数")
	f.DurationVar(&delay, "delay", 0, "节点之间的等待时间, 例如 1s")
	f.BoolVar(&resume, "resume", false, "跳过检查点中已完成的叶子分类")
	f.BoolVar(&headless, "headless", true, "无头浏览器模式")
	f.BoolVar(&respectRobots, "respect-robots", false, "遵守robots.txt")
	f.StringSliceVar(&sinkKinds, "sink", nil, "写入端 (jsonl|postgres|mongo), 可多次指定")
	f.StringVarP(&outputDir, "output", "o", "", "输出目录")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus指标监听地址, 例如 :9090")
	f.StringVar(&sitesFile, "sites", "", "额外的站点适配器文件")

	_ = cmd.MarkFlagRequired("site")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	// Ctrl+C取消遍历, 已打开的页面和写入端在返回时关闭
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ValidateFlags(siteName, targetURLs, urlFile, threshold, maxPages, concurrency, sinkKinds); err != nil {
		return err
	}

	flags := core.CLIFlags{
		Threshold:     threshold,
		MaxPages:      maxPages,
		Concurrency:   concurrency,
		Delay:         delay,
		Resume:        resume,
		RespectRobots: respectRobots,
		Sinks:         sinkKinds,
		OutputDir:     outputDir,
		MetricsAddr:   metricsAddr,
		SitesFile:     sitesFile,
	}
	if cmd.Flags().Changed("headless") {
		flags.Headless = &headless
	}
	appConfig.MergeCLIFlags(flags)
	if err := appConfig.Validate(); err != nil {
		return err
	}
	crawlConfig := appConfig.GetCrawlConfig()

	catalog, err := config.LoadSites(appConfig.SitesFile)
	if err != nil {
		return err
	}
	site, err := catalog.Get(siteName)
	if err != nil {
		return err
	}
	if threshold > 0 {
		site.Threshold = 0
	}

	seeds, err := collectSeeds(targetURLs, urlFile)
	if err != nil {
		return err
	}
	roots, err := config.BuildRoots(site, categories, seeds)
	if err != nil {
		return err
	}

	task, err := models.NewCrawlTask(site.Name, roots, crawlConfig)
	if err != nil {
		return err
	}
	runID := task.ID
	utils.Infof("🏪 站点: %s, 入口: %d, 阈值: %d, 运行ID: %s", site.Name, len(roots), effectiveThreshold(site, crawlConfig), runID)

	monitor := crawlers.NewResourceMonitor(crawlers.DefaultResourceMonitorConfig())
	monitor.StartMonitoring(2 * time.Second)
	defer monitor.StopMonitoring()

	fetcher, err := newFetcher(site, crawlConfig, monitor)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	sink, err := openSinks(ctx, appConfig, runID)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			utils.Error(err, "关闭写入端失败")
		}
	}()

	checkpoint, err := openCheckpoint(ctx, appConfig, runID)
	if err != nil {
		return err
	}
	defer checkpoint.Close()
	if !crawlConfig.Resume {
		if err := checkpoint.Reset(ctx, site.Name); err != nil {
			utils.Logger.Warn().Err(err).Str("site", site.Name).Msg("重置检查点失败")
		}
	}

	opts := core.CrawlerOptions{RunID: runID, Checkpoint: checkpoint}
	if crawlConfig.RespectRobots {
		opts.Robots = crawlers.NewRobotsGate(crawlConfig.UserAgent, 10*time.Second)
	}
	if appConfig.Metrics.Addr != "" {
		metrics := observability.NewMetrics()
		metrics.Start(appConfig.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx)
		}()
		opts.Metrics = metrics
	}

	crawler := core.NewCrawler(site, crawlConfig, fetcher, sink, opts)
	jobs := make([]core.RootJob, 0, len(roots))
	for _, root := range roots {
		jobs = append(jobs, core.RootJob{Crawler: crawler, Root: root})
	}

	batch := core.NewBatchCrawler(crawlConfig.Concurrency, monitor, !verbose)
	startedAt := time.Now()
	task.StartedAt = &startedAt
	task.Status = models.TaskStatusRunning
	summary, runErr := batch.Run(ctx, jobs)

	finishTask(task, summary, runErr)
	reporter := utils.NewReporter(appConfig.Output.BaseDir)
	if err := reporter.SaveTask(task); err != nil {
		utils.Error(err, "保存任务快照失败")
	}

	if summary != nil {
		report := summary.BuildReport(runID, []string{site.Name}, crawlConfig)
		if err := reporter.GenerateReport(report); err != nil {
			utils.Error(err, "生成报告失败")
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			utils.Warn("⚠️  收到中断信号, 已停止遍历 (使用 --resume 继续)")
			return nil
		}
		return fmt.Errorf("遍历失败: %w", runErr)
	}

	utils.Info("✨ 爬取任务完成!")
	return nil
}

// finishTask 按遍历结果更新任务状态
func finishTask(task *models.CrawlTask, summary *core.BatchSummary, runErr error) {
	completedAt := time.Now()
	task.CompletedAt = &completedAt
	if summary != nil {
		task.Stats = summary.Stats
	}

	switch {
	case runErr == nil:
		task.Status = models.TaskStatusCompleted
	case errors.Is(runErr, context.Canceled):
		task.Status = models.TaskStatusCancelled
	default:
		task.Status = models.TaskStatusFailed
		task.ErrorMessage = runErr.Error()
	}
}

// collectSeeds 合并 --url 和 --url-file 的入口
func collectSeeds(urls, file string) ([]utils.Seed, error) {
	var seeds []utils.Seed
	for _, raw := range utils.SplitList(urls) {
		normalized, err := NormalizeURL(raw)
		if err != nil {
			return nil, fmt.Errorf("无效的入口URL %q: %w", raw, err)
		}
		seeds = append(seeds, utils.Seed{URL: normalized})
	}

	if file != "" {
		fromFile, err := utils.ReadSeedsFromFile(file)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, fromFile...)
	}
	return seeds, nil
}

func effectiveThreshold(site models.SiteAdapter, cfg models.CrawlConfig) int {
	if site.Threshold > 0 {
		return site.Threshold
	}
	return cfg.Threshold
}

// newFetcher 按站点配置选择获取方式
func newFetcher(site models.SiteAdapter, cfg models.CrawlConfig, monitor *crawlers.ResourceMonitor) (models.Fetcher, error) {
	if site.Fetcher == models.FetcherStatic {
		return crawlers.NewStaticFetcher(crawlers.StaticOptions{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.NavigationTimeout,
		}), nil
	}

	fetcher, err := crawlers.NewRodFetcher(crawlers.RodOptions{
		Headless:      cfg.Headless,
		UserAgent:     cfg.UserAgent,
		ReadySelector: site.Selectors.ReadyWaitFor,
		ReadyTimeout:  cfg.NavigationTimeout,
		MaxTabs:       cfg.Concurrency,
		// 无限滚动依赖图片撑开的高度, 不能拦截
		BlockResources: site.Strategy == models.StrategyClick,
		Monitor:        monitor,
	})
	if err != nil {
		return nil, err
	}
	return fetcher, nil
}

// openSinks 打开配置的全部写入端
func openSinks(ctx context.Context, cfg *core.Config, runID string) (models.Sink, error) {
	var opened []models.Sink
	fail := func(err error) (models.Sink, error) {
		for _, s := range opened {
			_ = s.Close()
		}
		return nil, err
	}

	for _, kind := range cfg.Sink.Kinds {
		switch kind {
		case core.SinkJSONL:
			path := cfg.JSONLPath(runID)
			s, err := sinks.NewJSONLSink(path)
			if err != nil {
				return fail(err)
			}
			utils.Infof("📝 记录写入: %s", path)
			opened = append(opened, s)
		case core.SinkPostgres:
			pg := cfg.Sink.Postgres
			s, err := sinks.NewPostgresSink(ctx, pg.DSN, pg.Schema, pg.Table)
			if err != nil {
				return fail(err)
			}
			opened = append(opened, s)
		case core.SinkMongo:
			m := cfg.Sink.Mongo
			s, err := sinks.NewMongoSink(ctx, m.URI, m.Database, m.Collection)
			if err != nil {
				return fail(err)
			}
			opened = append(opened, s)
		default:
			return fail(fmt.Errorf("未知写入端: %q", kind))
		}
	}

	if len(opened) == 1 {
		return opened[0], nil
	}
	return sinks.NewMultiSink(opened...), nil
}

// openCheckpoint 打开检查点存储
func openCheckpoint(ctx context.Context, cfg *core.Config, runID string) (core.CheckpointStore, error) {
	if cfg.Checkpoint.Backend == core.CheckpointRedis {
		store, err := core.NewRedisCheckpointStore(ctx, cfg.Checkpoint.RedisURL, cfg.Checkpoint.Prefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := core.NewFileCheckpointStore(cfg.CheckpointDir(), runID)
	if err != nil {
		return nil, err
	}
	return store, nil
}
