package mdxport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// NotionTokenEnv is read when no token is configured.
const NotionTokenEnv = "NOTION_TOKEN"

// notionPageSize is the largest page the blocks endpoint returns.
const notionPageSize = 100

// NotionSource fetches pages and block children from Notion.
type NotionSource interface {
	Page(ctx context.Context, id string) (*notionapi.Page, error)
	Children(ctx context.Context, blockID string) ([]notionapi.Block, error)
}

// notionClient is the API-backed NotionSource. Every request waits on a
// shared limiter; Notion allows an average of three requests per second.
type notionClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

var _ NotionSource = (*notionClient)(nil)

func newNotionClient(token string, perSecond float64, httpClient *http.Client) *notionClient {
	if perSecond <= 0 {
		perSecond = defaultNotionRate
	}
	var opts []notionapi.ClientOption
	if httpClient != nil {
		opts = append(opts, notionapi.WithHTTPClient(httpClient))
	}
	return &notionClient{
		api:     notionapi.NewClient(notionapi.Token(token), opts...),
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (n *notionClient) Page(ctx context.Context, id string) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page, err := n.api.Page.Get(ctx, notionapi.PageID(id))
	if err != nil {
		return nil, fmt.Errorf("%w: page %s: %v", ErrNotionFetch, id, err)
	}
	return page, nil
}

// Children returns all children of a block, following pagination.
func (n *notionClient) Children(ctx context.Context, blockID string) ([]notionapi.Block, error) {
	var (
		blocks []notionapi.Block
		cursor notionapi.Cursor
	)
	for {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := n.api.Block.GetChildren(ctx, notionapi.BlockID(blockID), &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    notionPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: children of %s: %v", ErrNotionFetch, blockID, err)
		}
		blocks = append(blocks, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return blocks, nil
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}
}

// notionToken returns the configured token, falling back to NOTION_TOKEN.
func notionToken(configured string) string {
	if configured != "" {
		return configured
	}
	return strings.TrimSpace(os.Getenv(NotionTokenEnv))
}

// notionSource returns the injected source or builds the API client.
func (c *Converter) notionSource() (NotionSource, error) {
	if c.notion != nil {
		return c.notion, nil
	}
	token := notionToken(c.cfg.notionToken)
	if token == "" {
		return nil, ErrNotionToken
	}
	c.notion = newNotionClient(token, c.cfg.notionRate, c.http)
	return c.notion, nil
}

// fetchNotionPage renders a page and its nested blocks. Images are
// downloaded into media before their URLs expire.
func fetchNotionPage(ctx context.Context, src NotionSource, id string, media *downloader) (notionPage, error) {
	page, err := src.Page(ctx, id)
	if err != nil {
		return notionPage{}, err
	}
	r := &blockRenderer{src: src, media: media}
	body, err := r.render(ctx, id)
	if err != nil {
		return notionPage{}, err
	}

	out := notionPage{Markdown: body}
	out.Title, out.Tags = pageProperties(page.Properties)
	if !page.CreatedTime.IsZero() {
		out.Created = page.CreatedTime.Format("2006-01-02")
	}
	return out, nil
}

// pageProperties reads the title property and multi-select tag properties.
func pageProperties(props notionapi.Properties) (title string, tags []string) {
	for name, prop := range props {
		switch p := prop.(type) {
		case *notionapi.TitleProperty:
			title = plainRichText(p.Title)
		case *notionapi.MultiSelectProperty:
			if !isTagProperty(strings.ToLower(name)) {
				continue
			}
			for _, opt := range p.MultiSelect {
				tags = append(tags, opt.Name)
			}
		}
	}
	return strings.TrimSpace(title), tags
}
