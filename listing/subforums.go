package listing

import (
	"log"

	"github.com/ptt/forumsync/dom"
	"github.com/ptt/forumsync/forum"
)

const (
	classSubforum = "subforum"
	tagSubtext    = "dd"
)

// ParseSubforums returns the child forums listed on a forum page.
func ParseSubforums(doc dom.Node, parentID int) []forum.Forum {
	var forums []forum.Forum
	for _, sf := range doc.ByClass(classSubforum) {
		link, ok := dom.First(sf.ByAttr("href"))
		if !ok {
			continue
		}
		id, err := forum.DigitsOnly(link.Attr("href"))
		if err != nil {
			log.Printf("listing: subforum link %q: %v", link.Attr("href"), err)
			continue
		}
		if id <= 0 {
			continue
		}
		f := forum.Forum{
			ID:       id,
			ParentID: parentID,
			Title:    link.Text(),
		}
		if dd, ok := dom.First(sf.ByTag(tagSubtext)); ok {
			f.Subtext = forum.NormalizeSubtext(dd.Text())
		}
		forums = append(forums, f)
	}
	return forums
}
