package agents

import (
	"fmt"
	"strings"

	"github.com/backline-ai/backline/agent"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

// voiceContextSize is how many stored writing samples ground each turn.
const voiceContextSize = 3

const socialPrompt = `Your job is Instagram content that sounds like the artist actually wrote it, not like generic AI copy.

Voice samples retrieved for this conversation appear above when the artist has any on file. Study their energy, vocabulary, and sentence shapes, then write new captions in that voice. Never copy a sample.

Craft notes:
- Feed posts: 150-300 words, first line is the hook, line breaks for readability.
- Reels: short and punchy, 1-3 sentences.
- Gig promos carry the essentials: venue, date, time, where tickets are.
- Hashtags come back from draft_post; keep them at the end of the caption.

Rules:
1. Never publish anything yourself. draft_post prepares the caption; the user approves; only then call publish_post with the approved draft id.
2. If a caption doesn't sound like the samples, redraft. The newest draft is the one that counts.
3. Suggest what visual to pair with the caption via image_note.
4. When the artist shares writing they like, offer to save it with add_voice_sample so future drafts match it.`

// NewSocial builds the Instagram agent. Voice samples come from the memory
// store's voice scope; drafts are grounded by retrieving the samples most
// relevant to each user message into the instruction.
func NewSocial(llm model.Model, deps Deps, optFns ...func(o *agent.ModelAgentOptions)) Binding {
	d := router.Descriptor{
		Name:        "social",
		Description: "Drafts voice-matched Instagram posts with hashtags and publishes them after the user approves.",
		Keywords: []string{
			"post", "instagram", "caption", "hashtag", "social", "reel",
			"promote", "announce", "followers", "fans", "show",
		},
		Priority: 4,
	}
	tools := []tool.Tool{
		draftPostTool(deps.Store, deps.Voice),
		publishPostTool(deps.Store),
		listPostsTool(deps.Store),
		addVoiceSampleTool(deps.Voice),
	}
	return newAgent(d, voiceInstruction(deps.Voice), llm, deps, tools, optFns)
}

// voiceInstruction resolves the social prompt per run, prepending the voice
// samples most relevant to the user's message. Retrieval failures degrade to
// the plain prompt rather than failing the turn.
func voiceInstruction(voice core.MemoryStore) agent.Instruction {
	return agent.NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		prompt := promptHeader("Social Media Agent") + "\n\n" + socialPrompt
		if voice == nil {
			return prompt, nil
		}
		query := rc.UserContent.Text()
		if query == "" {
			return prompt, nil
		}
		samples, err := voice.Search(rc, core.VoiceScope, query, voiceContextSize)
		if err != nil {
			rc.LogWarn("social.voice.search_failed", "error", err.Error())
			return prompt, nil
		}
		if len(samples) == 0 {
			return prompt, nil
		}

		var b strings.Builder
		b.WriteString("How the artist actually writes. Match this voice:\n")
		for i, sample := range samples {
			category, _ := sample.Metadata["category"].(string)
			if category != "" {
				fmt.Fprintf(&b, "%d. (%s) %s\n", i+1, category, sample.Content)
			} else {
				fmt.Fprintf(&b, "%d. %s\n", i+1, sample.Content)
			}
		}
		b.WriteString("\n")
		b.WriteString(prompt)
		return b.String(), nil
	})
}

func draftPostTool(st *store.Store, voice core.MemoryStore) tool.Tool {
	return tool.NewFunctionTool("draft_post",
		"Prepare an Instagram post for the user to approve: caption plus generated hashtags. Nothing is published until the user approves and publish_post is called with the draft id.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic":         map[string]any{"type": "string", "description": "What the post is about, e.g. 'indie rock gig at The Earl'. Drives hashtag selection."},
				"caption":       map[string]any{"type": "string", "description": "The caption, written in the artist's voice"},
				"kind":          map[string]any{"type": "string", "description": "feed (default), reel, story, or carousel"},
				"image_note":    map[string]any{"type": "string", "description": "What visual to pair with the caption"},
				"notes":         map[string]any{"type": "string"},
				"hashtag_count": map[string]any{"type": "integer", "description": "Default 15"},
			},
			"required": []any{"topic", "caption"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			topic := stringArg(args, "topic")
			caption := stringArg(args, "caption")
			hashtags := Hashtags(topic, intArg(args, "hashtag_count", 0))

			result := map[string]any{
				"draft_id":   core.NewID(),
				"summary":    fmt.Sprintf("%s post: %s", postKind(args), firstLine(caption)),
				"topic":      topic,
				"caption":    caption,
				"hashtags":   hashtags,
				"kind":       postKind(args),
				"image_note": stringArg(args, "image_note"),
				"notes":      stringArg(args, "notes"),
			}

			// Ride the closest samples along so the model can check the
			// caption against the artist's voice and redraft if it misses.
			if voice != nil {
				samples, err := voice.Search(tc, core.VoiceScope, topic, voiceContextSize)
				if err == nil && len(samples) > 0 {
					texts := make([]string, 0, len(samples))
					for _, s := range samples {
						texts = append(texts, s.Content)
					}
					result["voice_samples"] = texts
				}
			}
			return result, nil
		},
		tool.WithDraftKind("post"))
}

func publishPostTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("publish_post",
		"Publish a previously approved post draft. Requires the draft id from draft_post.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"draft_id": map[string]any{"type": "string"},
			},
			"required": []any{"draft_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			saved, err := st.SavePost(tc, store.Post{
				Kind:      stringArg(args, "kind"),
				Caption:   stringArg(args, "caption"),
				Hashtags:  stringsArg(args, "hashtags"),
				ImageNote: stringArg(args, "image_note"),
				Notes:     stringArg(args, "notes"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"published": true, "post": postPayload(saved)}, nil
		},
		tool.WithCommitKind("post", "draft_id"))
}

func listPostsTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("list_posts",
		"List published posts, newest first.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{"type": "string", "description": "posted (default) or archived"},
				"limit":  map[string]any{"type": "integer", "description": "Default 20"},
			},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			posts, err := st.ListPosts(tc, store.PostStatus(stringArg(args, "status")),
				intArg(args, "limit", 0))
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(posts))
			for _, p := range posts {
				out = append(out, postPayload(p))
			}
			return map[string]any{"posts": out, "count": len(out)}, nil
		})
}

func addVoiceSampleTool(voice core.MemoryStore) tool.Tool {
	return tool.NewFunctionTool("add_voice_sample",
		"Save a writing sample so future drafts can match the artist's voice.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":     map[string]any{"type": "string", "description": "The sample, verbatim"},
				"category": map[string]any{"type": "string", "description": "gig_promo, behind_the_scenes, fan_engagement, new_release, or collaboration"},
			},
			"required": []any{"text"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			if voice == nil {
				return nil, fmt.Errorf("voice store not configured")
			}
			category := stringArg(args, "category")
			md := map[string]any{}
			if category != "" {
				md["category"] = category
			}
			id, err := voice.Store(tc, core.VoiceScope, stringArg(args, "text"), md)
			if err != nil {
				return nil, err
			}
			return map[string]any{"sample_id": id, "category": category}, nil
		})
}

func postKind(args map[string]any) string {
	if kind := stringArg(args, "kind"); kind != "" {
		return kind
	}
	return "feed"
}

// firstLine trims a caption to its hook for summaries.
func firstLine(caption string) string {
	line := caption
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	runes := []rune(line)
	if len(runes) > 80 {
		line = string(runes[:80]) + "..."
	}
	return line
}

func postPayload(p store.Post) map[string]any {
	out := map[string]any{
		"id":      p.ID,
		"kind":    p.Kind,
		"caption": p.Caption,
		"status":  string(p.Status),
		"created": p.Created.Format("2006-01-02"),
	}
	if len(p.Hashtags) > 0 {
		out["hashtags"] = p.Hashtags
	}
	if p.ImageNote != "" {
		out["image_note"] = p.ImageNote
	}
	if p.Notes != "" {
		out["notes"] = p.Notes
	}
	return out
}
