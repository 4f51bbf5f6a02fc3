// Package tickets — transcript.go собирает HTML-транскрипт темы.
// Транскрипт строится один раз при удалении тикета и больше не
// перегенерируется; его ссылка — blake2b-256 от документа.
package tickets

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/crypto/blake2b"

	"serotonyl.ru/support-bot/internal/common"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

// getMarkdown — общий конвертер. Сырой HTML из сообщений не пропускается
// (goldmark по умолчанию его вырезает).
func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		)
	})
	return markdown
}

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<title>Тикет #{{.ChannelID}} — {{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;background:#1e1f22;color:#dbdee1;margin:0;padding:24px}
header{border-bottom:1px solid #3f4147;margin-bottom:16px;padding-bottom:8px}
.msg{display:flex;gap:12px;margin:10px 0}
.meta{min-width:220px;color:#949ba4;font-size:13px}
.author{color:#f2f3f5;font-weight:600}
.bot{background:#5865f2;color:#fff;border-radius:3px;font-size:10px;padding:1px 4px;margin-left:4px}
.content p{margin:0 0 4px}
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
<p>Категория: {{.Category}} · Автор: {{.CreatorName}} (id{{.CreatorID}})</p>
<p>Открыт: {{.Opened}} · Закрыт: {{.Closed}}</p>
{{if .Claimer}}<p>Исполнитель: id{{.Claimer}}</p>{{end}}
{{if .Details}}<p>Описание: {{.Details}}</p>{{end}}
</header>
{{range .Messages}}<div class="msg">
<div class="meta"><span class="author">{{.Author}}</span>{{if .IsBot}}<span class="bot">БОТ</span>{{end}}<br>{{.Time}}</div>
<div class="content">{{.Content}}</div>
</div>
{{else}}<p>Сообщений нет.</p>
{{end}}
</body>
</html>
`))

type transcriptView struct {
	ChannelID   int64
	Title       string
	Category    string
	CreatorName string
	CreatorID   int64
	Claimer     int64
	Details     string
	Opened      string
	Closed      string
	Messages    []messageView
}

type messageView struct {
	Author  string
	IsBot   bool
	Time    string
	Content template.HTML
}

// RenderTranscript строит HTML-документ по снимку тикета.
func RenderTranscript(t Ticket, closedAt time.Time, loc *time.Location) ([]byte, error) {
	view := transcriptView{
		ChannelID:   t.ChannelID,
		Title:       t.Title,
		Category:    t.Category,
		CreatorName: t.CreatorName,
		CreatorID:   t.CreatorID,
		Claimer:     t.ClaimerID,
		Details:     t.Details,
		Opened:      common.FormatDateTime(t.StartTime, loc),
		Closed:      common.FormatDateTime(closedAt, loc),
	}
	for _, m := range t.Messages {
		content, err := renderContent(m.Content)
		if err != nil {
			return nil, fmt.Errorf("рендер сообщения %s: %w", m.AuthorName, err)
		}
		view.Messages = append(view.Messages, messageView{
			Author:  m.AuthorName,
			IsBot:   m.IsBot,
			Time:    common.FormatDateTime(m.Timestamp, loc),
			Content: content,
		})
	}

	var buf bytes.Buffer
	if err := transcriptTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("шаблон транскрипта: %w", err)
	}
	return buf.Bytes(), nil
}

func renderContent(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// TranscriptRef — ссылка на документ: "b2:" + hex(blake2b-256).
func TranscriptRef(doc []byte) string {
	sum := blake2b.Sum256(doc)
	return "b2:" + hex.EncodeToString(sum[:])
}
