package chat

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/users"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/dbtest"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		panic("emit outside transaction")
	}
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	t      *testing.T
	db     *gorm.DB
	svc    Service
	outbox *recordingOutbox
	users  *users.Repository
	seq    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.OpenWithSchema(t)
	rec := &recordingOutbox{}
	userRepo := users.NewRepository(conn)
	clock := time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Tx:     pkgdb.NewFromGorm(conn),
		Outbox: rec,
		Users:  userRepo,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)
	return &fixture{t: t, db: conn, svc: svc, outbox: rec, users: userRepo}
}

func (f *fixture) user(roles ...enums.UserRole) auth.Actor {
	f.t.Helper()
	f.seq++
	u, err := f.users.Create(context.Background(), users.CreateUserDTO{
		Email:     fmt.Sprintf("user%d@example.com", f.seq),
		FirstName: "User",
		LastName:  fmt.Sprint(f.seq),
		Roles:     roles,
	})
	require.NoError(f.t, err)
	return auth.Actor{UserID: u.ID, Roles: roles}
}

func (f *fixture) send(actor auth.Actor, chatID uuid.UUID, content string) *MessageDTO {
	f.t.Helper()
	msg, err := f.svc.SendMessage(context.Background(), SendMessageInput{Actor: actor, ChatID: chatID, Content: content})
	require.NoError(f.t, err)
	return msg
}

func TestDirectChatIsFoundOrCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(enums.RoleCustomer)
	bob := f.user(enums.RoleChef)

	first, err := f.svc.FindOrCreateDirect(ctx, alice, bob.UserID)
	require.NoError(t, err)
	again, err := f.svc.FindOrCreateDirect(ctx, bob, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	viaCreate, err := f.svc.CreateConversation(ctx, CreateConversationInput{Actor: alice, ParticipantIDs: []uuid.UUID{bob.UserID, alice.UserID}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, viaCreate.ID)

	carol := f.user(enums.RoleCustomer)
	group, err := f.svc.CreateConversation(ctx, CreateConversationInput{Actor: alice, ParticipantIDs: []uuid.UUID{bob.UserID, carol.UserID}})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, group.ID)
	assert.Len(t, group.Participants, 3)

	afterGroup, err := f.svc.FindOrCreateDirect(ctx, alice, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, afterGroup.ID, "group chats are not direct chats")
}

func TestConversationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(enums.RoleCustomer)

	_, err := f.svc.FindOrCreateDirect(ctx, alice, alice.UserID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateConversation(ctx, CreateConversationInput{Actor: alice})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	ghost := uuid.New()
	_, err = f.svc.CreateConversation(ctx, CreateConversationInput{Actor: alice, ParticipantIDs: []uuid.UUID{ghost}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{ghost.String()}, details["missing_user_ids"])

	_, err = f.svc.FindOrCreateDirect(ctx, auth.Actor{}, ghost)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestSendMessageRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(enums.RoleCustomer)
	bob := f.user(enums.RoleChef)
	staff := f.user(enums.RoleStaff)
	chat, err := f.svc.FindOrCreateDirect(ctx, alice, bob.UserID)
	require.NoError(t, err)

	msg := f.send(alice, chat.ID, "  hello there  ")
	assert.Equal(t, "hello there", msg.Content)
	assert.Equal(t, enums.MessageTypeText, msg.Type)

	require.Len(t, f.outbox.events, 1)
	event := f.outbox.events[0]
	assert.Equal(t, enums.EventChatMessageSent, event.EventType)
	sent := event.Data.(payloads.ChatMessageSentEvent)
	assert.Equal(t, []uuid.UUID{bob.UserID}, sent.Recipients)
	assert.Equal(t, models.ParticipantRoleMember, event.Actor.Role)

	loaded, err := f.svc.GetConversation(ctx, staff, chat.ID)
	require.NoError(t, err, "operators can read any chat")
	require.NotNil(t, loaded.LastMessageAt)

	cases := []struct {
		name  string
		input SendMessageInput
		code  pkgerrors.Code
	}{
		{"outsider", SendMessageInput{Actor: staff, ChatID: chat.ID, Content: "hi"}, pkgerrors.CodeForbidden},
		{"empty text", SendMessageInput{Actor: alice, ChatID: chat.ID, Content: "   "}, pkgerrors.CodeValidation},
		{"system type", SendMessageInput{Actor: alice, ChatID: chat.ID, Type: enums.MessageTypeSystem, Content: "x"}, pkgerrors.CodeValidation},
		{"image without url", SendMessageInput{Actor: alice, ChatID: chat.ID, Type: enums.MessageTypeImage}, pkgerrors.CodeValidation},
		{"unknown chat", SendMessageInput{Actor: alice, ChatID: uuid.New(), Content: "hi"}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, tc.input)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}

	url := "https://cdn.example.com/dish.jpg"
	name := "dish.jpg"
	image, err := f.svc.SendMessage(ctx, SendMessageInput{Actor: bob, ChatID: chat.ID, Type: enums.MessageTypeImage, FileURL: &url, FileName: &name})
	require.NoError(t, err)
	assert.Equal(t, "dish.jpg", f.outbox.events[len(f.outbox.events)-1].Data.(payloads.ChatMessageSentEvent).Preview)
	assert.Equal(t, &url, image.FileURL)
}

func TestDirectMessageCreatesChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(enums.RoleCustomer)
	bob := f.user(enums.RoleChef)

	msg, err := f.svc.SendDirectMessage(ctx, DirectMessageInput{Actor: alice, RecipientID: bob.UserID, Content: "is the jollof ready?"})
	require.NoError(t, err)
	chat, err := f.svc.FindOrCreateDirect(ctx, bob, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, msg.ChatID)
}

func TestEditAndDeleteMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(enums.RoleCustomer)
	bob := f.user(enums.RoleChef)
	admin := f.user(enums.RoleAdmin)
	chat, err := f.svc.FindOrCreateDirect(ctx, alice, bob.UserID)
	require.NoError(t, err)
	msg := f.send(alice, chat.ID, "first draft")

	_, err = f.svc.EditMessage(ctx, bob, chat.ID, msg.ID, "hijack")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	edited, err := f.svc.EditMessage(ctx, alice, chat.ID, msg.ID, "second draft")
	require.NoError(t, err)
	assert.Equal(t, "second draft", edited.Content)
	assert.True(t, edited.Edited)

	err = f.svc.DeleteMessage(ctx, bob, chat.ID, msg.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.DeleteMessage(ctx, admin, chat.ID, msg.ID))
	require.NoError(t, f.svc.DeleteMessage(ctx, alice, chat.ID, msg.ID), "repeat delete succeeds")

	_, err = f.svc.EditMessage(ctx, alice, chat.ID, msg.ID, "third draft")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	list, err := f.svc.ListMessages(ctx, ListMessagesInput{Actor: bob, ChatID: chat.ID})
	require.NoError(t, err)
	require.Len(t, list.Messages, 1)
	assert.True(t, list.Messages[0].Deleted)
	assert.Empty(t, list.Messages[0].Content)
}

func TestReactionsAreCountedPerEmoji(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(enums.RoleCustomer)
	bob := f.user(enums.RoleChef)
	chat, err := f.svc.FindOrCreateDirect(ctx, alice, bob.UserID)
	require.NoError(t, err)
	msg := f.send(alice, chat.ID, "order is on its way")

	_, err = f.svc.React(ctx, alice, chat.ID, msg.ID, "👍")
	require.NoError(t, err)
	_, err = f.svc.React(ctx, alice, chat.ID, msg.ID, "👍")
	require.NoError(t, err)
	out, err := f.svc.React(ctx, bob, chat.ID, msg.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"👍": 2}, out.Reactions)

	out, err = f.svc.Unreact(ctx, alice, chat.ID, msg.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"👍": 1}, out.Reactions)

	_, err = f.svc.React(ctx, alice, chat.ID, msg.ID, "not an emoji")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	outsider := f.user(enums.RoleCustomer)
	_, err = f.svc.React(ctx, outsider, chat.ID, msg.ID, "🔥")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestReadReceiptsAndUnreadCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(enums.RoleCustomer)
	bob := f.user(enums.RoleChef)
	chat, err := f.svc.FindOrCreateDirect(ctx, alice, bob.UserID)
	require.NoError(t, err)

	m1 := f.send(alice, chat.ID, "one")
	m2 := f.send(alice, chat.ID, "two")
	f.send(alice, chat.ID, "three")
	f.send(bob, chat.ID, "reply")

	list, err := f.svc.ListConversations(ctx, bob, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, int64(3), list.Conversations[0].UnreadCount)
	require.NotNil(t, list.Conversations[0].LastMessage)
	assert.Equal(t, "reply", list.Conversations[0].LastMessage.Content)
	assert.Equal(t, int64(1), list.Meta.Total)

	marked, err := f.svc.MarkRead(ctx, bob, chat.ID, &m2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	again, err := f.svc.MarkRead(ctx, bob, chat.ID, &m1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again)

	messages, err := f.svc.ListMessages(ctx, ListMessagesInput{Actor: alice, ChatID: chat.ID})
	require.NoError(t, err)
	require.Len(t, messages.Messages, 4)
	read := map[string]bool{}
	for _, m := range messages.Messages {
		read[m.Content] = m.IsRead
	}
	assert.Equal(t, map[string]bool{"one": true, "two": true, "three": false, "reply": false}, read)

	list, err = f.svc.ListConversations(ctx, bob, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Conversations[0].UnreadCount)

	all, err := f.svc.MarkRead(ctx, bob, chat.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), all)
}

func TestListMessagesPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(enums.RoleCustomer)
	bob := f.user(enums.RoleChef)
	chat, err := f.svc.FindOrCreateDirect(ctx, alice, bob.UserID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		f.send(alice, chat.ID, fmt.Sprintf("m%d", i))
	}

	page, err := f.svc.ListMessages(ctx, ListMessagesInput{Actor: bob, ChatID: chat.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "m4", page.Messages[0].Content, "newest first")

	tail, err := f.svc.ListMessages(ctx, ListMessagesInput{Actor: bob, ChatID: chat.ID, Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, tail.Messages, 1)
	assert.False(t, tail.HasMore)

	_, err = f.svc.ListMessages(ctx, ListMessagesInput{Actor: bob, ChatID: chat.ID, Offset: -1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPostOrderUpdateReusesOrderChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.user(enums.RoleCustomer)
	chef := f.user(enums.RoleChef)
	orderID := uuid.New()
	update := OrderUpdate{
		OrderID:     orderID,
		OrderNumber: "CN-20260502-ABCDEF",
		CustomerID:  customer.UserID,
		ChefID:      chef.UserID,
		SenderID:    chef.UserID,
		Content:     "Order confirmed",
		Metadata:    map[string]any{"order_status": "confirmed"},
	}

	var first, second, third uuid.UUID
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = f.svc.PostOrderUpdate(ctx, tx, update)
		return err
	}))
	update.ChatID = &first
	update.Content = "Preparing"
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		second, err = f.svc.PostOrderUpdate(ctx, tx, update)
		return err
	}))
	update.ChatID = nil
	update.Content = "Ready"
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		third, err = f.svc.PostOrderUpdate(ctx, tx, update)
		return err
	}))
	assert.Equal(t, first, second)
	assert.Equal(t, first, third, "chat is found by order id")

	chat, err := f.svc.GetConversation(ctx, customer, first)
	require.NoError(t, err)
	assert.Equal(t, enums.ChatKindOrder, chat.Kind)
	assert.Equal(t, &orderID, chat.OrderID)
	assert.Len(t, chat.Participants, 2)

	list, err := f.svc.ListMessages(ctx, ListMessagesInput{Actor: customer, ChatID: first})
	require.NoError(t, err)
	require.Len(t, list.Messages, 3)
	assert.Equal(t, enums.MessageTypeStatusUpdate, list.Messages[0].Type)
	assert.Equal(t, orderID.String(), list.Messages[0].Metadata.String("order_id"))

	sent := f.outbox.events[0].Data.(payloads.ChatMessageSentEvent)
	assert.Equal(t, []uuid.UUID{customer.UserID}, sent.Recipients)
	assert.Equal(t, &orderID, sent.OrderID)

	_, err = f.svc.PostOrderUpdate(ctx, nil, update)
	assert.Error(t, err)
}

func TestSupportChatSyncsCasePreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.user(enums.RoleCustomer)
	agent := f.user(enums.RoleStaff)
	aiAgent := uuid.New()
	supportCase := models.SupportCase{
		UserID:           customer.UserID,
		Subject:          "Late order",
		Message:          "Where is my food?",
		Category:         enums.SupportCategoryOrder,
		Priority:         enums.SupportPriorityMedium,
		Status:           enums.SupportStatusOpen,
		Attachments:      []string{},
		SupportReference: "SUP-ABCDEFGH",
	}
	require.NoError(t, f.db.Create(&supportCase).Error)

	var chatID uuid.UUID
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		chatID, err = f.svc.OpenSupportChat(ctx, tx, SupportChat{CaseID: supportCase.ID, UserID: customer.UserID, AIAgentID: aiAgent, Subject: supportCase.Subject})
		if err != nil {
			return err
		}
		_, err = f.svc.PostSystemMessage(ctx, tx, Post{ChatID: chatID, SenderID: customer.UserID, Type: enums.MessageTypeText, Content: supportCase.Message})
		return err
	}))

	var stored models.SupportCase
	require.NoError(t, f.db.First(&stored, "id = ?", supportCase.ID).Error)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "Where is my food?", *stored.LastMessage)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.ReplaceParticipant(ctx, tx, chatID, &aiAgent, agent.UserID, models.ParticipantRoleAgent)
	}))
	chat, err := f.svc.GetConversation(ctx, customer, chatID)
	require.NoError(t, err)
	roles := map[uuid.UUID]string{}
	for _, p := range chat.Participants {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, map[uuid.UUID]string{customer.UserID: models.ParticipantRoleMember, agent.UserID: models.ParticipantRoleAgent}, roles)

	reply := f.send(agent, chatID, "On it")
	assert.Equal(t, chatID, reply.ChatID)
	require.NoError(t, f.db.First(&stored, "id = ?", supportCase.ID).Error)
	assert.Equal(t, "On it", *stored.LastMessage)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}
