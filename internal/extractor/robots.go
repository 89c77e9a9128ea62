package extractor

import (
	"context"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samvad-hq/report-enhancer/pkg/httpclient"
	"github.com/temoto/robotstxt"
)

const (
	robotsTimeout  = 10 * time.Second
	robotsCacheTTL = time.Hour
)

// RobotsPolicy answers whether a URL may be fetched for the configured agent.
// Rules are cached per origin; fetch or parse failures allow the URL.
type RobotsPolicy struct {
	client httpclient.Client
	agent  string
	groups *cache.Cache
}

// NewRobotsPolicy builds a policy that fetches robots.txt through client.
func NewRobotsPolicy(client httpclient.Client, agent string) *RobotsPolicy {
	return &RobotsPolicy{
		client: client,
		agent:  agent,
		groups: cache.New(robotsCacheTTL, 2*robotsCacheTTL),
	}
}

// Allowed reports whether rawURL's path is permitted.
func (p *RobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	origin := u.Scheme + "://" + u.Host

	var group *robotstxt.Group
	if v, ok := p.groups.Get(origin); ok {
		group = v.(*robotstxt.Group)
	} else {
		group = p.fetch(ctx, origin)
		p.groups.SetDefault(origin, group)
	}
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (p *RobotsPolicy) fetch(ctx context.Context, origin string) *robotstxt.Group {
	ctx, cancel := context.WithTimeout(ctx, robotsTimeout)
	defer cancel()

	resp, err := p.client.Get(ctx, origin+"/robots.txt", map[string]string{"User-Agent": p.agent})
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode(), resp.Body())
	if err != nil {
		return nil
	}
	return data.FindGroup(p.agent)
}
