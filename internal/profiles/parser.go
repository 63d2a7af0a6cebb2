package profiles

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

const (
	htmlSingleQuoteCharacter = "'"
	htmlDoubleQuoteCharacter = `"`
	titleStartTag            = "<title>"
	titleEndTag              = "</title>"
	whitespaceCharacters     = " \t\r\n"
	displayNameSuffixSlashX  = " / X"
	displayNameSuffixOnX     = " on X"
	handleTokenPrefix        = "(@"
	handleTokenSuffix        = ")"
	metaTagPattern           = `<meta\s[^>]*>`
	metaContentPattern       = `\scontent="([^"]*)"`
	metaNamePatternFormat    = `\s(?:property|name)="%s"`
)

var (
	metaTagRegex     = regexp.MustCompile(metaTagPattern)
	metaContentRegex = regexp.MustCompile(metaContentPattern)

	avatarMetaRegexes      = metaNameRegexes("og:image", "twitter:image")
	displayNameMetaRegexes = metaNameRegexes("og:title", "twitter:title")
)

func metaNameRegexes(names ...string) []*regexp.Regexp {
	regexes := make([]*regexp.Regexp, 0, len(names))
	for _, name := range names {
		regexes = append(regexes, regexp.MustCompile(fmt.Sprintf(metaNamePatternFormat, regexp.QuoteMeta(name))))
	}
	return regexes
}

// PageParser extracts profile details from a rendered profile page.
type PageParser struct {
	htmlContent string
}

// NewPageParser constructs a parser for the provided HTML content.
func NewPageParser(htmlContent string) PageParser {
	normalizedHTML := strings.ReplaceAll(htmlContent, htmlSingleQuoteCharacter, htmlDoubleQuoteCharacter)
	return PageParser{htmlContent: normalizedHTML}
}

// ExtractDisplayName derives the display name from the title metadata, removing
// the handle token and the site suffix.
func (parser PageParser) ExtractDisplayName(handle string) string {
	titleContent := parser.metaContent(displayNameMetaRegexes)
	if titleContent == "" {
		titleContent = parser.titleTagContent()
	}
	if titleContent == "" {
		return ""
	}
	cleanedTitle := trimDisplayNameSuffixes(titleContent)
	if handle != "" {
		handleToken := handleTokenPrefix + handle + handleTokenSuffix
		if index := strings.Index(strings.ToLower(cleanedTitle), strings.ToLower(handleToken)); index >= 0 {
			cleanedTitle = cleanedTitle[:index] + cleanedTitle[index+len(handleToken):]
		}
		cleanedTitle = trimDisplayNameSuffixes(cleanedTitle)
	}
	return strings.Trim(cleanedTitle, whitespaceCharacters)
}

// ExtractAvatarURL returns the profile image advertised in the page metadata.
func (parser PageParser) ExtractAvatarURL() string {
	return parser.metaContent(avatarMetaRegexes)
}

// metaContent returns the content of the first meta tag matching one of
// nameRegexes, trying the regexes in order.
func (parser PageParser) metaContent(nameRegexes []*regexp.Regexp) string {
	tags := metaTagRegex.FindAllString(parser.htmlContent, -1)
	for _, nameRegex := range nameRegexes {
		for _, tag := range tags {
			if !nameRegex.MatchString(tag) {
				continue
			}
			match := metaContentRegex.FindStringSubmatch(tag)
			if len(match) < 2 {
				continue
			}
			if content := strings.TrimSpace(html.UnescapeString(match[1])); content != "" {
				return content
			}
		}
	}
	return ""
}

func (parser PageParser) titleTagContent() string {
	startIndex := strings.Index(parser.htmlContent, titleStartTag)
	if startIndex == -1 {
		return ""
	}
	startIndex += len(titleStartTag)
	endIndex := strings.Index(parser.htmlContent[startIndex:], titleEndTag)
	if endIndex == -1 {
		return ""
	}
	endIndex += startIndex
	return html.UnescapeString(strings.Trim(parser.htmlContent[startIndex:endIndex], whitespaceCharacters))
}

func trimDisplayNameSuffixes(titleContent string) string {
	trimmed := strings.Trim(titleContent, whitespaceCharacters)
	if strings.HasSuffix(trimmed, displayNameSuffixSlashX) {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, displayNameSuffixSlashX))
	}
	if strings.HasSuffix(trimmed, displayNameSuffixOnX) {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, displayNameSuffixOnX))
	}
	return trimmed
}
