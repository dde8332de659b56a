package extract

import (
	"fmt"
	"strings"
)

type fixturePost struct {
	Date        string
	Counter     string
	Href        string
	Username    string
	Icons       []string
	Content     string
	RatingsHTML string
}

func (p fixturePost) html() string {
	icons := strings.Join(p.Icons, "")
	return fmt.Sprintf(`<li class="postcontainer">
  <div class="posthead"><span class="date">%s</span></div>
  <div class="userinfo"><a class="username" href="member.php?u=1">%s</a></div>
  <a class="postcounter" href="%s">%s</a>
  <div class="postcontent">%s</div>
  <div class="postlinking">%s</div>
  <div class="rating_results">%s</div>
</li>`, p.Date, p.Username, p.Href, p.Counter, p.Content, icons, p.RatingsHTML)
}

func defaultPost() fixturePost {
	p := fixturePost{
		Date:     "4th March 2013",
		Counter:  "Post #41",
		Href:     "showthread.php?t=1250244&p=39842211&viewfull=1#post39842211",
		Username: "garry",
		Content:  `<div class="quote"><div class="message">earlier post</div></div>Hello <b>world</b>`,
	}
	p.Icons = []string{
		`<img src="/fp/os/windows_7.png" alt="Windows 7"/>`,
		`<img src="/fp/browser/chrome.png" alt="Chrome 25.0.1364.97"/>`,
		`<img src="/fp/flags/gb.png" alt="United Kingdom"/>`,
		`<img src="/fp/report.png" alt="Report"/>`,
	}
	p.RatingsHTML = `<span><img src="/fp/ratings/funny2.png" alt="Funny"/> x <strong>3</strong></span>` +
		`<span><img src="/fp/ratings/tick.png" alt="Good Idea"/> x <strong>12</strong></span>`
	return p
}

func page(pagination string, posts ...fixturePost) []byte {
	var b strings.Builder
	b.WriteString("<html><head><title>Thread</title></head><body>")
	if pagination != "" {
		fmt.Fprintf(&b, `<div class="pagination"><a class="popupctrl">%s</a></div>`, pagination)
	}
	b.WriteString(`<ol id="posts">`)
	for _, p := range posts {
		b.WriteString(p.html())
	}
	b.WriteString("</ol></body></html>")
	return []byte(b.String())
}
