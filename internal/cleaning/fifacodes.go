package cleaning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FIFACodesURL lists FIFA country codes in wikitables
const FIFACodesURL = "https://en.wikipedia.org/wiki/List_of_FIFA_country_codes"

// fifaTables is how many wikitables on the page hold member codes. Later
// tables list non-members and historic codes.
const fifaTables = 4

// ErrNoCodes is returned when a page yields no code/country pairs
var ErrNoCodes = errors.New("no FIFA codes found")

var footnote = regexp.MustCompile(`\[[^\]]*\]`)

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// ParseFIFACodes reads code to country pairs from the first wikitables of
// an HTML document. Tables without both a Code and a Country header are
// skipped.
func ParseFIFACodes(r io.Reader) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse codes page: %w", err)
	}
	codes := make(map[string]string)
	doc.Find("table.wikitable").Each(func(i int, tbl *goquery.Selection) {
		if i >= fifaTables {
			return
		}
		codeIdx, countryIdx := -1, -1
		tbl.Find("tr").First().Find("th").Each(func(j int, th *goquery.Selection) {
			switch cleanCell(th.Text()) {
			case "Code":
				codeIdx = j
			case "Country":
				countryIdx = j
			}
		})
		if codeIdx < 0 || countryIdx < 0 {
			return
		}
		tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() <= codeIdx || cells.Length() <= countryIdx {
				return
			}
			code := cleanCell(cells.Eq(codeIdx).Text())
			country := cleanCell(cells.Eq(countryIdx).Text())
			if code != "" && country != "" {
				codes[code] = country
			}
		})
	})
	if len(codes) == 0 {
		return nil, ErrNoCodes
	}
	return codes, nil
}

func cleanCell(s string) string {
	return strings.TrimSpace(footnote.ReplaceAllString(s, ""))
}

// FetchFIFACodes downloads and parses the codes page. A nil client uses a
// client with a 30 second timeout.
func FetchFIFACodes(ctx context.Context, client *http.Client, url string) (map[string]string, error) {
	if client == nil {
		client = defaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "valuepulse/1.0")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	return ParseFIFACodes(resp.Body)
}

// LoadFIFACodes reads codes from an http(s) URL or a local HTML file
func LoadFIFACodes(ctx context.Context, client *http.Client, source string) (map[string]string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return FetchFIFACodes(ctx, client, source)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open codes file: %w", err)
	}
	defer f.Close()
	return ParseFIFACodes(f)
}
