package builtin

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"fable/internal/logging"
	"fable/internal/session"
	"fable/internal/storage"
	"fable/internal/tools"
)

// FinishWritingTool is the sentinel name that ends a writing run.
const FinishWritingTool = "finish_writing"

// WriterTools holds the novel-writing tool set. Story metadata lives in the
// session context; draft chunks accumulate in a per-session chunk store.
type WriterTools struct {
	sessions *session.Manager
	rdb      redis.UniversalClient
	logger   logging.Logger
}

func NewWriterTools(sessions *session.Manager, rdb redis.UniversalClient) *WriterTools {
	return &WriterTools{
		sessions: sessions,
		rdb:      rdb,
		logger:   logging.NewComponentLogger("writer_tools"),
	}
}

// Names lists the writer tool set in registration order.
func (w *WriterTools) Names() []string {
	return []string{
		"set_story_language",
		"prompt_title",
		"prompt_roles",
		"prompt_story_outline",
		"prompt_chunk_content",
		"read_full_draft",
		FinishWritingTool,
	}
}

// Register adds every writer tool to the registry.
func (w *WriterTools) Register(registry *tools.Registry) error {
	for _, tool := range []*tools.Tool{
		w.setStoryLanguage(),
		w.promptTitle(),
		w.promptRoles(),
		w.promptStoryOutline(),
		w.promptChunkContent(),
		w.readFullDraft(),
		w.finishWriting(),
	} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func (w *WriterTools) store(args map[string]any) session.Store {
	sessionID, _ := args["session_id"].(string)
	return w.sessions.Get(sessionID)
}

func (w *WriterTools) chunks(args map[string]any) *storage.ChunkStore {
	sessionID, _ := args["session_id"].(string)
	return storage.NewChunkStore(sessionID, w.rdb)
}

func ctxString(ctx context.Context, store session.Store, key string) string {
	value, ok := store.Context(ctx, key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

func reasonProperty() map[string]any {
	return tools.StringProperty("reason for calling the tool, used to output the current step description")
}

func (w *WriterTools) setStoryLanguage() *tools.Tool {
	return &tools.Tool{
		Name:        "set_story_language",
		Description: "Set the story language",
		Parameters: tools.ObjectSchema(map[string]any{
			"language": tools.StringProperty("story language"),
			"reason":   reasonProperty(),
		}, "language"),
		RequireConfirm: true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			language, _ := args["language"].(string)
			w.store(args).SetContext(ctx, "language", language)
			return fmt.Sprintf("Story language set to: %s", language), nil
		},
	}
}

func (w *WriterTools) promptTitle() *tools.Tool {
	return &tools.Tool{
		Name:        "prompt_title",
		Description: "Generate novel title",
		Parameters: tools.ObjectSchema(map[string]any{
			"title":  tools.StringProperty("novel title"),
			"reason": reasonProperty(),
		}, "title"),
		RequireConfirm: true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			title, _ := args["title"].(string)
			w.store(args).SetContext(ctx, "title", title)
			return fmt.Sprintf("Novel title: %s", title), nil
		},
	}
}

func (w *WriterTools) promptRoles() *tools.Tool {
	return &tools.Tool{
		Name:        "prompt_roles",
		Description: "Generate novel characters",
		Parameters: tools.ObjectSchema(map[string]any{
			"roles":  tools.StringProperty("novel characters description"),
			"reason": reasonProperty(),
		}, "roles"),
		RequireConfirm: true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			store := w.store(args)
			if ctxString(ctx, store, "title") == "" {
				return "Please generate novel title first", nil
			}
			roles, _ := args["roles"].(string)
			store.SetContext(ctx, "roles", roles)
			return fmt.Sprintf("Novel characters: %s", roles), nil
		},
	}
}

func (w *WriterTools) promptStoryOutline() *tools.Tool {
	return &tools.Tool{
		Name: "prompt_story_outline",
		Description: "Generate novel outline and core conflicts and determine the number of subsequent chunks, " +
			"for example, a 10,000 word novel can be divided into 10 chunks, each chunk approximately 1000 words. " +
			"Each chunk needs to contain a complete story fragment.",
		Parameters: tools.ObjectSchema(map[string]any{
			"outline": tools.StringProperty("novel outline and core conflicts and the number of subsequent chunks"),
			"reason":  reasonProperty(),
		}, "outline"),
		RequireConfirm: true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			store := w.store(args)
			if ctxString(ctx, store, "title") == "" {
				return "Please generate novel title first", nil
			}
			outline, _ := args["outline"].(string)
			store.SetContext(ctx, "story_outline", outline)
			return fmt.Sprintf("Novel outline: %s", outline), nil
		},
	}
}

func (w *WriterTools) promptChunkContent() *tools.Tool {
	return &tools.Tool{
		Name: "prompt_chunk_content",
		Description: "Generate novel content fragment, chunk_index starts from 1. " +
			"If the previous chunk_index is not confirmed, regenerate the content of the previous chunk_index until it is confirmed. " +
			"If the previous chunk_index is confirmed, generate the content of the current chunk_index without repeating it.",
		Parameters: tools.ObjectSchema(map[string]any{
			"chunk_index": tools.IntegerProperty("content fragment index number"),
			"content":     tools.StringProperty("content fragment"),
			"reason":      reasonProperty(),
		}, "chunk_index", "content"),
		RequireConfirm: true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			store := w.store(args)
			if ctxString(ctx, store, "title") == "" {
				return "Please generate novel title first", nil
			}
			content, _ := args["content"].(string)
			chunkIndex, _ := toFloat(args["chunk_index"])

			chunks := w.chunks(args)
			if _, err := chunks.Add(ctx, content); err != nil {
				w.logger.Error("append chunk %v: %v", chunkIndex, err)
				return map[string]any{"error": err.Error()}, nil
			}
			total := draftRuneCount(ctx, chunks)
			return fmt.Sprintf("Confirmed chunk_index: %v \n\n Content fragment: %s \n\n Total word count: %d, Current chunk word count: %d \n\n",
				chunkIndex, content, total, utf8.RuneCountInString(content)), nil
		},
	}
}

func (w *WriterTools) readFullDraft() *tools.Tool {
	return &tools.Tool{
		Name:        "read_full_draft",
		Description: "Read back the full draft written so far, chunk by chunk",
		Parameters: tools.ObjectSchema(map[string]any{
			"reason": reasonProperty(),
		}),
		StreamHandler: func(ctx context.Context, args map[string]any, emit func(chunk string)) (any, error) {
			chunks := w.chunks(args)
			all := chunks.GetAll(ctx)
			total := 0
			for _, chunk := range all {
				emit(chunk)
				total += utf8.RuneCountInString(chunk)
			}
			return map[string]any{
				"chunks":     len(all),
				"word_count": total,
			}, nil
		},
	}
}

func (w *WriterTools) finishWriting() *tools.Tool {
	return &tools.Tool{
		Name: FinishWritingTool,
		Description: "Complete novel writing, need to ensure that the novel word count meets the requirements, " +
			"and the novel content meets the requirements.",
		Parameters: tools.ObjectSchema(map[string]any{
			"answer": tools.StringProperty("answer"),
			"reason": reasonProperty(),
		}),
		RequireConfirm: true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			chunks := w.chunks(args)
			count := draftRuneCount(ctx, chunks)
			if count == 0 {
				return map[string]any{"count": 0}, nil
			}
			if err := chunks.AddMeta(ctx, "word_count", fmt.Sprintf("%d", count)); err != nil {
				w.logger.Warn("record word count: %v", err)
			}
			answer, _ := args["answer"].(string)
			return answer, nil
		},
	}
}

func draftRuneCount(ctx context.Context, chunks *storage.ChunkStore) int {
	return utf8.RuneCountInString(strings.Join(chunks.GetAll(ctx), ""))
}
