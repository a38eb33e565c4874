package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"whybot/internal/service/answer"
	"whybot/internal/service/conversation"
)

// State состояние жизненного цикла запроса.
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
)

// ErrorPrefix начало сообщения об ошибке, которое видит пользователь.
const ErrorPrefix = "Oops! Something went wrong."

// WhyQuestion вопрос кнопки «Почему?».
const WhyQuestion = "Why?"

const defaultTimeout = 60 * time.Second

// Answerer сервис ответов.
type Answerer interface {
	Answer(ctx context.Context, question string, history []conversation.Message) (answer.Result, error)
}

// Voice голос бота: озвучка ответов и голосовой ввод. Оба Cancel: fire-and-forget.
type Voice interface {
	Speak(text string)
	Cancel()
	// CancelTranscription сбрасывает текущую запись без вопроса.
	CancelTranscription()
}

// Status снимок состояния для отрисовки.
type Status struct {
	State  State               `json:"state"`
	Error  string              `json:"error,omitempty"`
	Turns  []conversation.Turn `json:"turns"`
	CanWhy bool                `json:"canWhy"`
}

// Options параметры оркестратора.
type Options struct {
	// Timeout ограничивает один запрос к сервису ответов; по истечении: ServiceError("timeout").
	Timeout time.Duration
}

// Orchestrator владеет жизненным циклом запроса: единственный флаг pending гейтит все новые вопросы.
type Orchestrator struct {
	store   *conversation.Store
	answers Answerer
	voice   Voice
	timeout time.Duration
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	pending  bool
	errMsg   string
	inFlight sync.WaitGroup

	subsMu  sync.Mutex
	subs    map[int]chan Status
	nextSub int
}

func New(store *conversation.Store, answers Answerer, voice Voice, opts Options, logger *zap.SugaredLogger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Orchestrator{
		store:   store,
		answers: answers,
		voice:   voice,
		timeout: opts.Timeout,
		logger:  logger,
		subs:    make(map[int]chan Status),
	}
}

// Ask принимает вопрос. Пустой вопрос или вопрос во время pending молча игнорируются (false).
func (o *Orchestrator) Ask(question string) bool {
	return o.ask(question, nil)
}

// RepeatLast задаёт вопрос "Why?", но только если последняя реплика от бота и запроса в полёте нет.
func (o *Orchestrator) RepeatLast() bool {
	return o.ask(WhyQuestion, o.canWhyLocked)
}

func (o *Orchestrator) ask(question string, guard func() bool) bool {
	if strings.TrimSpace(question) == "" {
		return false
	}

	o.mu.Lock()
	if o.pending {
		o.mu.Unlock()
		o.logger.Infow("Question ignored: request pending", "question", question)
		return false
	}
	if guard != nil && !guard() {
		o.mu.Unlock()
		return false
	}
	o.pending = true
	o.errMsg = ""
	// История: диалог до нового вопроса; сам вопрос уходит отдельно.
	history := o.store.History()
	turn := o.store.Append(conversation.RoleUser, question, "")
	o.inFlight.Add(1)
	o.mu.Unlock()

	o.logger.Infow("Question accepted", "turn", turn.ID, "history", len(history))
	o.publish()

	go o.run(question, history)
	return true
}

type outcome struct {
	res answer.Result
	err error
}

func (o *Orchestrator) run(question string, history []conversation.Message) {
	defer o.inFlight.Done()

	ctx, cancel := context.WithTimeoutCause(context.Background(), o.timeout, errors.New("answer timeout"))
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		res, err := o.answers.Answer(ctx, question, history)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		// Сервис не уложился: результат, если придёт, будет выброшен.
		out = outcome{err: &answer.ServiceError{Msg: answer.MsgTimeout, Err: context.Cause(ctx)}}
	}

	o.mu.Lock()
	var spoken string
	if out.err != nil {
		o.errMsg = UserMessage(out.err)
	} else {
		// После Reset диалог может быть уже пуст: просто добавляем, осиротевшая реплика допустима.
		o.store.Append(conversation.RoleBot, out.res.Answer, out.res.ImageURL)
		spoken = out.res.Answer
	}
	o.pending = false
	o.mu.Unlock()

	if out.err != nil {
		o.logger.Errorw("Answer failed", "duration", time.Since(start).String(), "error", out.err)
	} else {
		o.logger.Infow("Answer ready", "duration", time.Since(start).String(), "redirected", out.res.Redirected)
		if o.voice != nil {
			o.voice.Speak(spoken)
		}
	}
	o.publish()
}

// Reset очищает диалог и ошибку, останавливает озвучку и сбрасывает начатую запись.
// Запрос в полёте не отменяется, и гейт pending остаётся закрытым до его завершения:
// одновременно в полёте не больше одного запроса, а поздний ответ ляжет в новый диалог.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.store.Clear()
	o.errMsg = ""
	wasPending := o.pending
	o.mu.Unlock()

	if o.voice != nil {
		o.voice.Cancel()
		o.voice.CancelTranscription()
	}
	o.logger.Infow("Conversation reset", "pending", wasPending)
	o.publish()
}

// Pending сообщает, есть ли запрос в полёте.
func (o *Orchestrator) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}

// Status возвращает снимок состояния.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{State: StateIdle, Error: o.errMsg, Turns: o.store.Turns(), CanWhy: o.canWhyLocked()}
	if o.pending {
		st.State = StatePending
	}
	return st
}

// Wait блокируется, пока запрос в полёте не завершится.
func (o *Orchestrator) Wait() {
	o.inFlight.Wait()
}

func (o *Orchestrator) canWhyLocked() bool {
	if o.pending {
		return false
	}
	last, ok := o.store.Last()
	return ok && last.Role == conversation.RoleBot
}

// Subscribe возвращает канал снимков состояния и функцию отписки.
// Медленный подписчик теряет промежуточные снимки, но не блокирует оркестратор.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 16)
	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subsMu.Lock()
			delete(o.subs, id)
			o.subsMu.Unlock()
			close(ch)
		})
	}
}

// publish снимает состояние под subsMu: снимки уходят подписчикам в том же порядке, в каком сняты.
func (o *Orchestrator) publish() {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	st := o.Status()
	for _, ch := range o.subs {
		select {
		case ch <- st:
		default:
			// в случае переполнения: дроп, чтобы не блокировать
		}
	}
}

// UserMessage текст ошибки для пользователя: общий префикс и деталь из ServiceError.
func UserMessage(err error) string {
	detail := err.Error()
	var se *answer.ServiceError
	if errors.As(err, &se) {
		detail = se.Msg
	}
	return ErrorPrefix + " " + detail
}
