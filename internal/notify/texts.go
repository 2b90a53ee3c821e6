package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/and161185/sleep-keeper/internal/model"
)

var supported = []language.Tag{language.English, language.SimplifiedChinese}

var entries = map[language.Tag]map[string]string{
	language.English: {
		"title." + string(model.KindModeEnabled):   "Sleep mode enabled",
		"body." + string(model.KindModeEnabled):    "Distracting apps will be blocked during your sleep time.",
		"title." + string(model.KindSleepStarted):  "Sleep time started",
		"body." + string(model.KindSleepStarted):   "Selected apps are blocked now. Time to rest.",
		"title." + string(model.KindSleepEnded):    "Sleep time ended",
		"body." + string(model.KindSleepEnded):     "Good morning! Your apps are available again.",
		"title." + string(model.KindUpcomingStart): "Sleep mode starting soon",
		"body." + string(model.KindUpcomingStart):  "Your sleep time starts in a few minutes.",
	},
	language.SimplifiedChinese: {
		"title." + string(model.KindModeEnabled):   "睡眠模式已开启",
		"body." + string(model.KindModeEnabled):    "睡眠时间内将屏蔽分心的应用。",
		"title." + string(model.KindSleepStarted):  "睡眠时间开始",
		"body." + string(model.KindSleepStarted):   "所选应用已被屏蔽，该休息了。",
		"title." + string(model.KindSleepEnded):    "睡眠时间结束",
		"body." + string(model.KindSleepEnded):     "早上好！应用已恢复使用。",
		"title." + string(model.KindUpcomingStart): "睡眠模式即将开始",
		"body." + string(model.KindUpcomingStart):  "睡眠时间即将开始，请准备休息。",
	},
}

var (
	builder = newBuilder()
	matcher = language.NewMatcher(supported)
)

func newBuilder() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range entries {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Texts renders notification titles and bodies in one language.
type Texts struct {
	tag language.Tag
	p   *message.Printer
}

// NewTexts picks the closest supported language to lang, English when nothing matches.
func NewTexts(lang string) *Texts {
	_, idx, _ := matcher.Match(language.Make(lang))
	tag := supported[idx]
	return &Texts{tag: tag, p: message.NewPrinter(tag, message.Catalog(builder))}
}

// Language returns the selected language.
func (t *Texts) Language() language.Tag { return t.tag }

// Message renders kind.
func (t *Texts) Message(kind model.NotificationKind) Message {
	return Message{
		Kind:  kind,
		Title: t.p.Sprintf("title." + string(kind)),
		Body:  t.p.Sprintf("body." + string(kind)),
	}
}
