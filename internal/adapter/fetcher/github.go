package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"

	"github.com/google/go-github/v53/github"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// GithubFetcher 抓取指定仓库在时间窗口内创建/合并的 PR
type GithubFetcher struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGithubFetcher 初始化 GitHub 客户端。
// repoName 形如 "obsidianmd/obsidian-releases"；token 为空时走匿名限额。
func NewGithubFetcher(token, repoName string) (*GithubFetcher, error) {
	parts := strings.SplitN(repoName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput,
			fmt.Sprintf("仓库名格式错误: %s，应为 owner/repo", repoName))
	}

	var client *github.Client
	if token == "" {
		client = github.NewClient(nil)
	} else {
		ctx := context.Background()
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(ctx, ts)
		client = github.NewClient(tc)
	}

	return &GithubFetcher{client: client, owner: parts[0], repo: parts[1]}, nil
}

// FetchPRs 返回窗口内新开启和新合并的 PR 两个列表。
// 已关闭且未合并的 PR 视为废弃/重复提交，直接忽略。
func (f *GithubFetcher) FetchPRs(ctx context.Context, start, end time.Time) (opened, merged []*domain.Item, err error) {
	log.Infof("🔍 [GitHub] 检查 %s/%s 的 PR...", f.owner, f.repo)

	opts := &github.PullRequestListOptions{
		State:     "all",
		Sort:      "created",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: 50,
		},
	}

	var prs []*github.PullRequest
	err = common.Do(ctx, func() error {
		var apiErr error
		prs, _, apiErr = f.client.PullRequests.List(ctx, f.owner, f.repo, opts)
		return apiErr
	},
		common.WithMaxRetries(3),
		common.WithBaseDelay(time.Second),
	)
	if err != nil {
		return nil, nil, common.WrapError(common.ErrCodeFetch, "GitHub API 调用失败", err)
	}

	for _, pr := range prs {
		createdAt := pr.GetCreatedAt().Time
		inWindow := func(t time.Time) bool {
			return !t.IsZero() && !t.Before(start) && !t.After(end)
		}

		// 昨日开启
		if inWindow(createdAt) {
			state := pr.GetState()
			isMerged := pr.MergedAt != nil

			if state == domain.StateClosed && !isMerged {
				log.Infof("  🗑️ 忽略 (已关闭且未合并): %s", pr.GetTitle())
			} else {
				opened = append(opened, &domain.Item{
					Source:    "GitHub Open",
					Title:     pr.GetTitle(),
					URL:       pr.GetHTMLURL(),
					Author:    pr.GetUser().GetLogin(),
					CreatedAt: createdAt.UTC().Format(time.RFC3339),
					Body:      pr.GetBody(),
					State:     state,
				})
				log.Infof("  ✨ 开启: %s", pr.GetTitle())
			}
		}

		// 昨日合并
		if pr.MergedAt != nil && inWindow(pr.GetMergedAt().Time) {
			merged = append(merged, &domain.Item{
				Source:   "GitHub Merged",
				Title:    pr.GetTitle(),
				URL:      pr.GetHTMLURL(),
				Author:   pr.GetUser().GetLogin(),
				MergedAt: pr.GetMergedAt().Time.UTC().Format(time.RFC3339),
				Body:     pr.GetBody(),
				State:    domain.StateMerged,
			})
			log.Infof("  🚀 合并: %s", pr.GetTitle())
		}
	}

	return opened, merged, nil
}
