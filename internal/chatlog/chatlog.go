// Package chatlog is the alert queue fed by the trigger pipeline and drained
// by a single goroutine that posts to the configured Telegram log channel
// (grounded on original_source's tgbot/log.py TelegramLog).
package chatlog

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"listing-sniper/internal/corelog"
)

// entry is one queued line plus its delivery options.
type entry struct {
	text   string
	silent bool
}

// Queue is a single-consumer alert log: producers call Enqueue and never
// block on delivery, matching asyncio.Queue's put/get decoupling.
type Queue struct {
	bot       *tgbotapi.BotAPI
	channelID int64
	ch        chan entry
	log       *corelog.Logger
}

// New builds a Queue bound to a bot token and destination channel. The
// channel is buffered generously since Telegram delivery is much slower
// than the rate trigger parts can discover coins.
func New(bot *tgbotapi.BotAPI, channelID int64) *Queue {
	return &Queue{
		bot:       bot,
		channelID: channelID,
		ch:        make(chan entry, 256),
		log:       corelog.New("chatlog"),
	}
}

// Enqueue satisfies corelog.Notifier and the trigger package's chatLog field:
// it never blocks the caller on network I/O.
func (q *Queue) Enqueue(line string) {
	q.enqueue(line, false)
}

// EnqueueSilent queues a line sent without a notification sound, used for
// high-volume low-priority alerts.
func (q *Queue) EnqueueSilent(line string) {
	q.enqueue(line, true)
}

func (q *Queue) enqueue(line string, silent bool) {
	select {
	case q.ch <- entry{text: line, silent: silent}:
	default:
		q.log.Errorf("queue full, dropping alert: %s", line)
	}
}

// Run drains the queue until ctx is done, one message at a time, matching
// the original's single consumer goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-q.ch:
			msg := tgbotapi.NewMessage(q.channelID, e.text)
			msg.ParseMode = tgbotapi.ModeHTML
			msg.DisableNotification = e.silent
			if _, err := q.bot.Send(msg); err != nil {
				q.log.Errorf("send to log channel failed: %v", err)
			}
		}
	}
}
