package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"contest-bot/internal/cache"
	"contest-bot/internal/config"
	"contest-bot/internal/contest"
	"contest-bot/internal/models"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	callbackTaskDone    = "tiktok_done"
	callbackLeaderboard = "leaderboard"
	callbackMyStats     = "my_stats"

	welcomeDedupTTL = time.Hour
	goodbyeDedupTTL = time.Hour
)

type Bot struct {
	Instance *telego.Bot
	Service  *contest.Service
	Cache    cache.Cache
	Config   *config.Config
}

func NewBot(token string, service *contest.Service, c cache.Cache, cfg *config.Config) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance: tgBot,
		Service:  service,
		Cache:    c,
		Config:   cfg,
	}, nil
}

func (b *Bot) Start() {
	updates, _ := b.Instance.UpdatesViaLongPolling(context.Background(), nil)

	handler, _ := th.NewBotHandler(b.Instance, updates)

	// /start command, possibly carrying a referral deep-link payload
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		from := message.From

		if !b.allowCommand(ctx.Context(), from.ID) {
			return nil
		}

		// Parse arguments manually
		payload := ""
		if parts := strings.Split(message.Text, " "); len(parts) > 1 {
			payload = parts[1]
		}

		participant, err := b.Service.GetOrCreateParticipant(ctx.Context(), contest.JoinRequested{
			UserID:          from.ID,
			ChatID:          b.Config.ContestChatID,
			FirstName:       from.FirstName,
			LastName:        from.LastName,
			Username:        from.Username,
			ReferralPayload: payload,
		})
		if err != nil {
			log.Printf("Failed to get/create participant %d: %v", from.ID, err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "❌ Что-то пошло не так, попробуйте позже."))
			return nil
		}

		b.sendWelcome(ctx, message.Chat.ID, participant)
		return nil
	}, th.CommandEqual("start"))

	// /stats command
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		if !b.allowCommand(ctx.Context(), update.Message.From.ID) {
			return nil
		}
		b.sendPersonalLeaderboard(ctx, update.Message.Chat.ID, update.Message.From.ID)
		return nil
	}, th.CommandEqual("stats"))

	// /leaderboard command
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		if !b.allowCommand(ctx.Context(), update.Message.From.ID) {
			return nil
		}
		b.sendLeaderboard(ctx, update.Message.Chat.ID)
		return nil
	}, th.CommandEqual("leaderboard"))

	// Task completion button. The press registers the user if the contest
	// does not know them yet.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		awarded, err := b.Service.ClickTaskButton(ctx.Context(), contest.TaskButtonClicked{
			UserID:    telegramID,
			ChatID:    b.Config.ContestChatID,
			FirstName: callback.From.FirstName,
			LastName:  callback.From.LastName,
			Username:  callback.From.Username,
		})
		if err != nil {
			log.Printf("Task button failed for user %d: %v", telegramID, err)
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID).WithText("❌ Ошибка, попробуйте позже."))
			return nil
		}

		if awarded {
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID).
				WithText(fmt.Sprintf("✅ Задание засчитано! +%d баллов", b.Config.TaskPoints)))
		} else {
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID).
				WithText("Задание уже было засчитано."))
		}
		return nil
	}, th.CallbackDataEqual(callbackTaskDone))

	// Leaderboard button
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		b.sendLeaderboard(ctx, callback.From.ID)
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual(callbackLeaderboard))

	// Personal leaderboard button
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		b.sendPersonalLeaderboard(ctx, callback.From.ID, callback.From.ID)
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual(callbackMyStats))

	// Membership changes in the contest chat
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		member := update.ChatMember
		if member.Chat.ID != b.Config.ContestChatID {
			return nil
		}

		user := member.NewChatMember.MemberUser()
		switch member.NewChatMember.MemberStatus() {
		case telego.MemberStatusLeft, telego.MemberStatusBanned:
			if err := b.Service.HandleUserLeft(ctx.Context(), user.ID, member.Chat.ID); err != nil {
				log.Printf("Failed to handle departure of user %d: %v", user.ID, err)
				return nil
			}
			b.sendGoodbye(ctx, user)
		case telego.MemberStatusMember:
			_, err := b.Service.GetOrCreateParticipant(ctx.Context(), contest.JoinRequested{
				UserID:    user.ID,
				ChatID:    member.Chat.ID,
				FirstName: user.FirstName,
				LastName:  user.LastName,
				Username:  user.Username,
			})
			if err != nil {
				log.Printf("Failed to register joining user %d: %v", user.ID, err)
			}
		}
		return nil
	}, func(ctx context.Context, update telego.Update) bool {
		return update.ChatMember != nil
	})

	// TikTok link submissions (private messages)
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		telegramID := message.From.ID

		if !strings.Contains(strings.ToLower(message.Text), "tiktok.com") {
			return nil
		}

		accepted, err := b.Service.HandleTiktokSubmission(ctx.Context(), telegramID, b.Config.ContestChatID, message.Text)
		if err != nil {
			log.Printf("Task link failed for user %d: %v", telegramID, err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(message.Chat.ID), "❌ Ошибка, попробуйте позже."))
			return nil
		}

		if accepted {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(message.Chat.ID),
				fmt.Sprintf("✅ Ссылка принята! +%d баллов", b.Config.TaskPoints),
			))
		} else {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(message.Chat.ID),
				"Эта ссылка не подходит или уже была отправлена.",
			))
		}
		return nil
	}, th.AnyMessageWithText())

	handler.Start()
}

// allowCommand is the per-user command rate limit. A cache failure lets the
// command through: the gate is advisory.
func (b *Bot) allowCommand(ctx context.Context, userID int64) bool {
	key := fmt.Sprintf("rate_%d", userID)
	allowed, err := b.Cache.CheckRateLimit(ctx, key, b.Config.RateLimitMax, b.Config.RateLimitWindow)
	if err != nil {
		log.Printf("Rate limit check failed for user %d: %v", userID, err)
		return true
	}
	return allowed
}

func (b *Bot) sendWelcome(ctx *th.Context, chatID int64, participant *models.Participant) {
	dedupKey := fmt.Sprintf("welcome_%d_%d", participant.UserID, participant.ChatID)
	if seen, err := b.Cache.Has(ctx.Context(), dedupKey); err == nil && seen {
		return
	}

	botUsername := ""
	if info, err := b.Instance.GetMe(ctx.Context()); err == nil {
		botUsername = info.Username
	}
	refLink := fmt.Sprintf("https://t.me/%s?start=%s", botUsername, participant.ReferralCode)

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🎵 Выполнить задание").WithURL(b.Config.TaskURL),
			tu.InlineKeyboardButton("✅ Я выполнил").WithCallbackData(callbackTaskDone),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🏆 Таблица лидеров").WithCallbackData(callbackLeaderboard),
			tu.InlineKeyboardButton("📊 Мой рейтинг").WithCallbackData(callbackMyStats),
		),
	)

	msg := fmt.Sprintf("Привет, %s! 👋\n\n"+
		"Ты участвуешь в конкурсе!\n\n"+
		"🤝 Приглашай друзей: +%d баллов за каждого\n"+
		"🎵 Выполни задание: +%d баллов\n\n"+
		"🔗 *Твоя ссылка:*\n`%s`",
		participant.FirstName, b.Config.ReferralPoints, b.Config.TaskPoints, refLink)

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), msg).
		WithParseMode(telego.ModeMarkdown).WithReplyMarkup(keyboard))
	_ = b.Cache.Set(ctx.Context(), dedupKey, "true", welcomeDedupTTL)
}

func (b *Bot) sendGoodbye(ctx *th.Context, user telego.User) {
	dedupKey := fmt.Sprintf("goodbye_%d", user.ID)
	if seen, err := b.Cache.Has(ctx.Context(), dedupKey); err == nil && seen {
		return
	}

	_, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(
		tu.ID(b.Config.ContestChatID),
		fmt.Sprintf("👋 %s покинул(а) нас. Баллы за приглашение сняты.", user.FirstName),
	))
	if err == nil {
		_ = b.Cache.Set(ctx.Context(), dedupKey, "true", goodbyeDedupTTL)
	}
}

func (b *Bot) sendLeaderboard(ctx *th.Context, chatID int64) {
	entries, err := b.Service.GetLeaderboard(ctx.Context(), b.Config.ContestChatID, b.Config.LeaderboardSize)
	if err != nil {
		log.Printf("Failed to load leaderboard: %v", err)
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), "❌ Не удалось загрузить таблицу лидеров."))
		return
	}

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), FormatLeaderboard(entries)).
		WithParseMode(telego.ModeMarkdown))
}

func (b *Bot) sendPersonalLeaderboard(ctx *th.Context, chatID, userID int64) {
	personal, err := b.Service.GetPersonalLeaderboard(ctx.Context(), userID, b.Config.ContestChatID, b.Config.PersonalRange)
	if err != nil {
		log.Printf("Failed to load personal leaderboard for %d: %v", userID, err)
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), "❌ Не удалось загрузить рейтинг."))
		return
	}

	if personal.UserRank == 0 {
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), "Вы пока не участвуете в конкурсе. Нажмите /start."))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 *Ваше место: %d (%d баллов)*\n", personal.UserRank, personal.UserPoints))

	stats, err := b.Service.GetParticipantStats(ctx.Context(), userID, b.Config.ContestChatID)
	if err == nil && stats != nil {
		sb.WriteString(fmt.Sprintf("👥 Приглашено: %d\n", stats.ReferralCount))
		if stats.TiktokTaskCompleted {
			sb.WriteString("🎵 Задание выполнено\n")
		}
	}
	sb.WriteString("\n")
	for _, entry := range personal.Window {
		marker := "  "
		if entry.UserID == userID {
			marker = "▶️"
		}
		sb.WriteString(fmt.Sprintf("%s %d. %s — %d\n", marker, entry.Rank, displayName(&entry.Participant), entry.Points))
	}

	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), sb.String()).
		WithParseMode(telego.ModeMarkdown))
}

// FormatLeaderboard renders entries in rank order. Shared with the periodic
// publisher.
func FormatLeaderboard(entries []models.Participant) string {
	if len(entries) == 0 {
		return "🏆 В конкурсе пока никто не участвует."
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	sb.WriteString("🏆 *Таблица лидеров:*\n\n")
	for i, entry := range entries {
		prefix := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			prefix = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %s — %d баллов\n", prefix, displayName(&entry), entry.Points))
	}
	return sb.String()
}

func displayName(p *models.Participant) string {
	if p.Username != "" {
		return "@" + p.Username
	}
	name := p.FirstName
	if p.LastName != "" {
		name += " " + p.LastName
	}
	return name
}
