package mongodb

import (
	"fmt"
	"time"

	"classbazz-backend/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// postDocument posts 集合中的文档结构
type postDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Kind      string             `bson:"kind"`
	User      identityDocument   `bson:"user"`
	Text      string             `bson:"text,omitempty"`
	Code      *codeDocument      `bson:"code,omitempty"`
	ImageURL  string             `bson:"imageUrl,omitempty"`
	Reactions []reactionDocument `bson:"reactions"`
	Comments  []commentDocument  `bson:"comments"`
	Version   int64              `bson:"version"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type identityDocument struct {
	Name      string `bson:"name"`
	AvatarURL string `bson:"avatarUrl"`
	UserID    string `bson:"userId,omitempty"`
}

type codeDocument struct {
	Language string `bson:"language"`
	Content  string `bson:"content"`
}

type reactionDocument struct {
	UserID string `bson:"userId"`
	Type   string `bson:"type"`
}

type commentDocument struct {
	ID        string             `bson:"_id"`
	User      identityDocument   `bson:"user"`
	Text      string             `bson:"text"`
	CreatedAt time.Time          `bson:"createdAt"`
	Reactions []reactionDocument `bson:"reactions"`
}

func toDocument(p *model.Post) (*postDocument, error) {
	oid, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return nil, fmt.Errorf("无效的帖子ID %q: %w", p.ID, err)
	}

	doc := &postDocument{
		ID:        oid,
		Kind:      string(p.Kind),
		User:      identityDocument(p.User),
		Text:      p.Text,
		ImageURL:  p.ImageURL,
		Reactions: toReactionDocuments(p.Reactions),
		Comments:  make([]commentDocument, 0, len(p.Comments)),
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Code != nil {
		doc.Code = &codeDocument{Language: p.Code.Language, Content: p.Code.Content}
	}
	for _, c := range p.Comments {
		doc.Comments = append(doc.Comments, commentDocument{
			ID:        c.ID,
			User:      identityDocument(c.User),
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
			Reactions: toReactionDocuments(c.Reactions),
		})
	}
	return doc, nil
}

func fromDocument(doc *postDocument) *model.Post {
	p := &model.Post{
		ID:        doc.ID.Hex(),
		Kind:      model.PostKind(doc.Kind),
		User:      model.Identity(doc.User),
		Text:      doc.Text,
		ImageURL:  doc.ImageURL,
		Reactions: fromReactionDocuments(doc.Reactions),
		Comments:  make([]model.Comment, 0, len(doc.Comments)),
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	if doc.Code != nil {
		p.Code = &model.CodeSnippet{Language: doc.Code.Language, Content: doc.Code.Content}
	}
	for _, c := range doc.Comments {
		p.Comments = append(p.Comments, model.Comment{
			ID:        c.ID,
			User:      model.Identity(c.User),
			Text:      c.Text,
			CreatedAt: c.CreatedAt.UTC(),
			Reactions: fromReactionDocuments(c.Reactions),
		})
	}
	return p
}

func toReactionDocuments(reactions []model.Reaction) []reactionDocument {
	out := make([]reactionDocument, 0, len(reactions))
	for _, r := range reactions {
		out = append(out, reactionDocument{UserID: r.UserID, Type: string(r.Type)})
	}
	return out
}

func fromReactionDocuments(docs []reactionDocument) []model.Reaction {
	out := make([]model.Reaction, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.Reaction{UserID: d.UserID, Type: model.ReactionType(d.Type)})
	}
	return out
}
