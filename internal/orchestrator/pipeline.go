package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-server/internal/brains"
	"companion-server/internal/interfaces"
	"companion-server/internal/messaging"
	"companion-server/internal/models"
)

// Консьюмерские интерфейсы brains: пайплайн зависит от поведения,
// а не от конкретных структур, и мокается в тестах целиком.
type (
	// StateResolver обновляет состояние диалога. Не возвращает ошибку.
	StateResolver interface {
		Resolve(ctx context.Context, in brains.StateResolveInput) *models.ConversationState
	}

	// DialogueGenerator генерирует реплику персонажа. Не возвращает ошибку.
	DialogueGenerator interface {
		GenerateDialogue(ctx context.Context, in brains.DialogueInput) string
	}

	// ImageDecider решает, прикладывать ли изображение к обмену.
	ImageDecider interface {
		ShouldGenerateImage(ctx context.Context, in brains.ImageDecisionInput) (bool, string)
	}

	// ImagePlanner строит план изображения. Единственный фатальный brain.
	ImagePlanner interface {
		BuildImagePlan(ctx context.Context, in brains.PromptEngineerInput) (*brains.SDXLImagePlan, error)
	}

	// MemoryUpdater обновляет долговременную память чата.
	MemoryUpdater interface {
		UpdateMemory(ctx context.Context, chatID uuid.UUID, personaName string) error
	}
)

// Config - параметры оркестратора.
type Config struct {
	HistoryLimit int // сколько последних сообщений грузить в контекст brains

	// Параметры задач генерации изображений
	ImageWidth  int
	ImageHeight int
	ImageSteps  int
}

// Pipeline - оркестратор обмена: захват блокировки чата, последовательный
// прогон brains, транзакционная персистенция, доставка ответа и запуск
// фоновых веток. Единственная точка, которой разрешено брать и отпускать
// блокировку обработки чата.
type Pipeline struct {
	db       interfaces.DBTX
	txRunner interfaces.TxRunner

	chats     interfaces.ChatRepository
	messages  interfaces.MessageRepository
	imageJobs interfaces.ImageJobRepository
	personas  interfaces.PersonaProvider

	stateResolver StateResolver
	dialogue      DialogueGenerator
	imageDecider  ImageDecider
	imagePlanner  ImagePlanner
	memory        MemoryUpdater

	sender    interfaces.MessageSender
	publisher messaging.ImageTaskPublisher
	tasks     *TaskRunner

	cfg    Config
	logger *zap.Logger
}

// NewPipeline создает новый оркестратор.
func NewPipeline(
	db interfaces.DBTX,
	txRunner interfaces.TxRunner,
	chats interfaces.ChatRepository,
	messages interfaces.MessageRepository,
	imageJobs interfaces.ImageJobRepository,
	personas interfaces.PersonaProvider,
	stateResolver StateResolver,
	dialogue DialogueGenerator,
	imageDecider ImageDecider,
	imagePlanner ImagePlanner,
	memory MemoryUpdater,
	sender interfaces.MessageSender,
	publisher messaging.ImageTaskPublisher,
	tasks *TaskRunner,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.ImageWidth <= 0 {
		cfg.ImageWidth = 832
	}
	if cfg.ImageHeight <= 0 {
		cfg.ImageHeight = 1216
	}
	if cfg.ImageSteps <= 0 {
		cfg.ImageSteps = 30
	}
	return &Pipeline{
		db:            db,
		txRunner:      txRunner,
		chats:         chats,
		messages:      messages,
		imageJobs:     imageJobs,
		personas:      personas,
		stateResolver: stateResolver,
		dialogue:      dialogue,
		imageDecider:  imageDecider,
		imagePlanner:  imagePlanner,
		memory:        memory,
		sender:        sender,
		publisher:     publisher,
		tasks:         tasks,
		cfg:           cfg,
		logger:        logger.Named("Pipeline"),
	}
}

// exchangeResult - данные завершенного обмена, нужные фоновым веткам.
type exchangeResult struct {
	chat         *models.Chat
	persona      *models.Persona
	prevStateRaw string
	state        *models.ConversationState
	history      []models.Message
	userMessage  string
	reply        string
}

// HandleExchange обрабатывает один обмен в чате: все накопленные необработанные
// сообщения пользователя сворачиваются в один прогон пайплайна.
//
// Блокировка обработки снимается РОВНО ОДИН РАЗ на любом исходе: и на успехе
// (после доставки ответа, до запуска фоновых веток), и на любой ошибке шагов
// между захватом и доставкой.
func (p *Pipeline) HandleExchange(ctx context.Context, chatID uuid.UUID) error {
	log := p.logger.With(zap.String("chatID", chatID.String()))

	acquired, err := p.chats.TryAcquireProcessing(ctx, p.db, chatID)
	if err != nil {
		return fmt.Errorf("failed to acquire processing lock: %w", err)
	}
	if !acquired {
		return models.ErrChatAlreadyProcessing
	}

	result, runErr := p.runLocked(ctx, chatID, log)

	if relErr := p.chats.ReleaseProcessing(ctx, p.db, chatID); relErr != nil {
		// Чат останется заблокированным до ручного вмешательства или реаперa,
		// это отдельный инцидент поверх исходной ошибки
		log.Error("Failed to release processing lock", zap.Error(relErr))
		if runErr == nil {
			runErr = fmt.Errorf("failed to release processing lock: %w", relErr)
		}
	}
	if runErr != nil {
		return runErr
	}
	if result == nil {
		// Нечего обрабатывать: батч пуст (сообщения забрал предыдущий прогон)
		return nil
	}

	p.spawnBackground(result)
	return nil
}

// runLocked выполняет шаги обмена под взятой блокировкой. Возвращает nil-результат
// без ошибки, если необработанных сообщений не оказалось.
func (p *Pipeline) runLocked(ctx context.Context, chatID uuid.UUID, log *zap.Logger) (*exchangeResult, error) {
	chat, err := p.chats.GetByID(ctx, p.db, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}

	persona, err := p.personas.GetPersona(ctx, chat.PersonaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}

	batch, err := p.messages.ListUnprocessed(ctx, p.db, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unprocessed messages: %w", err)
	}
	if len(batch) == 0 {
		log.Debug("No unprocessed messages, nothing to do")
		return nil, nil
	}

	history, err := p.messages.ListRecent(ctx, p.db, chatID, p.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// Все накопленные за время прошлой обработки сообщения склеиваются в одно:
	// пользователь часто дробит мысль на несколько сообщений подряд
	userMessage := joinBatch(batch)

	prevState, prevStateRaw := p.loadPrevState(chat, log)

	state := p.stateResolver.Resolve(ctx, brains.StateResolveInput{
		PrevState:   prevState,
		History:     history,
		UserMessage: userMessage,
		PersonaName: persona.Name,
		CallerID:    chatID.String(),
	})

	memory := ""
	if chat.Memory != nil {
		memory = *chat.Memory
	}
	reply := p.dialogue.GenerateDialogue(ctx, brains.DialogueInput{
		State:         state,
		History:       history,
		UserMessage:   userMessage,
		PersonaName:   persona.Name,
		PersonaPrompt: persona.Prompt,
		Memory:        memory,
		CallerID:      chatID.String(),
	})

	snapshot := state.Serialize()
	batchIDs := make([]uuid.UUID, len(batch))
	for i, msg := range batch {
		batchIDs[i] = msg.ID
	}

	// Результат обмена персистится одной транзакцией: либо батч помечен,
	// ответ сохранен и снимок обновлен целиком, либо ничего
	err = p.txRunner.WithTx(ctx, func(tx interfaces.DBTX) error {
		if err := p.messages.MarkProcessed(ctx, tx, batchIDs); err != nil {
			return fmt.Errorf("failed to mark messages processed: %w", err)
		}
		assistantMsg := &models.Message{
			ID:            uuid.New(),
			ChatID:        chatID,
			Role:          models.RoleAssistant,
			Text:          reply,
			StateSnapshot: &snapshot,
			IsProcessed:   true,
		}
		if err := p.messages.Create(ctx, tx, assistantMsg); err != nil {
			return fmt.Errorf("failed to save assistant message: %w", err)
		}
		if err := p.chats.UpdateAfterExchange(ctx, tx, chatID, snapshot, len(batch)); err != nil {
			return fmt.Errorf("failed to update chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist exchange: %w", err)
	}

	if err := p.sender.SendText(ctx, chat.UserID, reply); err != nil {
		// Обмен уже персистирован, пользователь просто не получил ответ сейчас
		return nil, fmt.Errorf("failed to deliver reply: %w", err)
	}

	log.Info("Exchange completed",
		zap.Int("batchSize", len(batch)),
		zap.String("stage", string(state.RelationshipStage)))

	return &exchangeResult{
		chat:         chat,
		persona:      persona,
		prevStateRaw: prevStateRaw,
		state:        state,
		history:      history,
		userMessage:  userMessage,
		reply:        reply,
	}, nil
}

// spawnBackground запускает фоновые ветки обмена. Их сбои не влияют
// на уже доставленный ответ.
func (p *Pipeline) spawnBackground(res *exchangeResult) {
	p.tasks.Go("image-generation", func(ctx context.Context) error {
		return p.runImageBranch(ctx, res)
	})
	p.tasks.Go("memory-update", func(ctx context.Context) error {
		return p.memory.UpdateMemory(ctx, res.chat.ID, res.persona.Name)
	})
}

// runImageBranch - фоновая ветка изображения: решение, план, задача, очередь.
// Запись ImageJob создается только после успешного плана: фатальный сбой
// инженера промптов не должен оставлять висячие задачи.
func (p *Pipeline) runImageBranch(ctx context.Context, res *exchangeResult) error {
	log := p.logger.With(zap.String("chatID", res.chat.ID.String()))

	generate, reason := p.imageDecider.ShouldGenerateImage(ctx, brains.ImageDecisionInput{
		PrevStateRaw: res.prevStateRaw,
		UserMessage:  res.userMessage,
		History:      res.history,
		PersonaName:  res.persona.Name,
		CallerID:     res.chat.ID.String(),
	})
	if !generate {
		log.Debug("Image generation skipped", zap.String("reason", reason))
		return nil
	}

	plan, err := p.imagePlanner.BuildImagePlan(ctx, brains.PromptEngineerInput{
		State:         res.state,
		DialogueReply: res.reply,
		UserMessage:   res.userMessage,
		PersonaName:   res.persona.Name,
		PersonaPrompt: res.persona.VisualPrompt,
		CallerID:      res.chat.ID.String(),
	})
	if err != nil {
		if errors.Is(err, brains.ErrImagePlanFailed) {
			log.Warn("Image plan failed, skipping image for this exchange", zap.Error(err))
			return nil
		}
		return err
	}

	prompt, negativePrompt := brains.AssembleFinalPrompt(plan, res.persona.VisualPrompt)

	job := &models.ImageJob{
		ID:             uuid.New(),
		ChatID:         res.chat.ID,
		PersonaID:      res.persona.ID,
		UserID:         res.chat.UserID,
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		Status:         models.ImageJobStatusQueued,
	}
	if err := p.imageJobs.Create(ctx, p.db, job); err != nil {
		return fmt.Errorf("failed to create image job: %w", err)
	}

	err = p.publisher.PublishImageTask(ctx, messaging.ImageTaskPayload{
		TaskID:         uuid.New().String(),
		ImageJobID:     job.ID.String(),
		ChatID:         res.chat.ID.String(),
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		Width:          p.cfg.ImageWidth,
		Height:         p.cfg.ImageHeight,
		Steps:          p.cfg.ImageSteps,
	})
	if err != nil {
		return fmt.Errorf("failed to publish image task: %w", err)
	}

	log.Info("Image task queued", zap.String("jobID", job.ID.String()), zap.String("reason", reason))
	return nil
}

// loadPrevState парсит сохраненный снимок состояния чата.
// Нечитаемый снимок означает первый обмен заново, а не отказ в обслуживании.
func (p *Pipeline) loadPrevState(chat *models.Chat, log *zap.Logger) (*models.ConversationState, string) {
	if chat.StateSnapshot == nil || strings.TrimSpace(*chat.StateSnapshot) == "" {
		return nil, ""
	}
	state, err := models.ParseConversationState(*chat.StateSnapshot)
	if err != nil {
		log.Warn("Stored state snapshot is unreadable, treating as first exchange", zap.Error(err))
		return nil, ""
	}
	return state, *chat.StateSnapshot
}

// joinBatch склеивает батч пользовательских сообщений в один текст.
func joinBatch(batch []models.Message) string {
	parts := make([]string, 0, len(batch))
	for _, msg := range batch {
		if text := strings.TrimSpace(msg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
