package telegram

import (
	"fmt"
	"strconv"
	"strings"

	e "nuclight.org/telegram-bridge/pkg/entities"
)

// ExtractMediaInfo classifies a raw message's media payload into the canonical
// media descriptor. It is a pure function: no I/O, no lookups.
func ExtractMediaInfo(msg *RawMessage) e.MediaInfo {
	if msg == nil || msg.Media == nil {
		return e.MediaInfo{}
	}

	switch media := msg.Media.(type) {
	case *Photo:
		return classifyPhoto(media, msg.ID)
	case *Document:
		return classifyDocument(media, msg.ID)
	case *WebPage:
		// Link previews carry nothing downloadable.
		return e.MediaInfo{}
	default:
		return e.MediaInfo{}
	}
}

func classifyPhoto(photo *Photo, messageID int64) e.MediaInfo {
	var largest int64
	for _, size := range photo.Sizes {
		if size.Size > largest {
			largest = size.Size
		}
	}

	return e.MediaInfo{
		HasMedia:  true,
		MediaType: e.MediaTypePhoto,
		FileID:    strconv.FormatInt(photo.ID, 10),
		FileName:  fmt.Sprintf("photo_%d.jpg", messageID),
		FileSize:  largest,
		MimeType:  "image/jpeg",
	}
}

func classifyDocument(doc *Document, messageID int64) e.MediaInfo {
	info := e.MediaInfo{
		HasMedia: true,
		FileID:   strconv.FormatInt(doc.ID, 10),
		FileSize: doc.Size,
		MimeType: doc.MimeType,
	}

	// Single pass over the attributes, last match of a category wins.
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *AttributeFilename:
			info.FileName = a.FileName
		case *AttributeAudio:
			if a.Voice {
				info.MediaType = e.MediaTypeVoice
			} else {
				info.MediaType = e.MediaTypeAudio
			}
		case *AttributeVideo:
			if a.RoundMessage {
				info.MediaType = e.MediaTypeVideoNote
			} else {
				info.MediaType = e.MediaTypeVideo
			}
		case *AttributeSticker:
			info.MediaType = e.MediaTypeSticker
		case *AttributeAnimated:
			info.MediaType = e.MediaTypeAnimation
		}
	}

	if info.MediaType == "" {
		switch {
		case strings.HasPrefix(doc.MimeType, "image/"):
			info.MediaType = e.MediaTypeDocumentImage
		case strings.HasPrefix(doc.MimeType, "video/"):
			info.MediaType = e.MediaTypeVideo
		case strings.HasPrefix(doc.MimeType, "audio/"):
			info.MediaType = e.MediaTypeAudio
		default:
			info.MediaType = e.MediaTypeDocument
		}
	}

	if info.FileName == "" {
		info.FileName = fmt.Sprintf("%s_%d%s", info.MediaType, messageID, extensionForMime(doc.MimeType))
	}

	return info
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "application/pdf":
		return ".pdf"
	case "application/zip":
		return ".zip"
	default:
		return ""
	}
}
