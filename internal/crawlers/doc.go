// Package crawlers 提供商品列表页的获取方式和页面级辅助工具
//
// # 概述
//
// crawlers包实现models.Fetcher的两种获取方式: 基于go-rod的无头浏览器和基于Colly的静态HTML。
// 遍历逻辑(分类树展开、翻页、抽取)在core包中, 这里只负责"打开一个URL并提供可操作的页面"。
//
// # 核心组件
//
// ## RodFetcher
//
// 启动一个浏览器进程, 通过PagePool复用标签页。导航后等待load事件,
// 站点配置了就绪选择器时再等待该元素出现。浏览器断开时自动重启,
// 累计启动次数超过上限后返回models.ErrBrowserCrashed。
//
//	fetcher, err := NewRodFetcher(RodOptions{
//	    Headless:      true,
//	    ReadySelector: site.Selectors.ReadyWaitFor,
//	    MaxTabs:       4,
//	    Monitor:       monitor,
//	})
//	defer fetcher.Close()
//
//	page, err := fetcher.Navigate(ctx, "https://www.plazavea.com.pe/abarrotes")
//	defer page.Close()
//
// ## StaticFetcher
//
// 每次导航创建一个一次性的Colly collector, 共享同一个http.Client。
// 支持gzip/deflate/br响应, 按Content-Type或内容特征确认是HTML。
// 静态页面的Click等价于跟随链接重新请求, 滚动为空操作。
//
// ## PagePool (标签页池)
//
// 限制同时打开的标签页数, 达到上限时AcquirePage阻塞到有标签页归还或ctx结束。
// 归还时清理localStorage/sessionStorage, 连续两次归还都清理失败的标签页被销毁。
//
// ## ResourceMonitor (资源监控器)
//
// 采样可用内存和CPU负载:
//   - MaxWorkers: 按可用内存计算并发上限, 用于批量遍历的并发数和标签页上限
//   - WaitForCapacity: CPU或内存紧张时, 新入口开始前等待资源恢复
//
// ## RobotsGate
//
// 按主机缓存robots.txt, 获取失败时默认允许。只在配置respect_robots时启用。
//
// ## 页面稳定性
//
// WaitForStable轮询容器高度, 连续若干次读数相同视为稳定, 供计数和无限滚动使用。
//
// # 并发安全
//
//   - PagePool: channel + sync.Mutex
//   - ResourceMonitor: sync.RWMutex
//   - RodFetcher: sync.Mutex保护浏览器重启
//   - 单个Page同一时刻只归属一个遍历步骤, 不做并发保护
package crawlers
